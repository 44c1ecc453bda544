package vpk

import "strings"

// noneMarker is the canonical value standing in for an absent directory or
// extension component (spec §3: "the canonical 'none' value is a single
// space").
const noneMarker = " "

// splitPath normalizes a logical path into the (extension, directory,
// fileName) triple used for every lookup and every add. Rules, applied in
// order (spec §4.2):
//
//  1. backslashes become forward slashes
//  2. split at the last '/': prefix is directory, suffix is name
//  3. split name at the last '.': prefix is fileName, suffix is ext
//  4. trim leading/trailing '/' from directory; empty becomes noneMarker
func splitPath(p string) (ext, dir, fileName string) {
	p = strings.ReplaceAll(p, `\`, "/")

	name := p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		dir = p[:i]
		name = p[i+1:]
	}

	fileName = name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		fileName = name[:i]
		ext = name[i+1:]
	} else {
		ext = noneMarker
	}

	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = noneMarker
	}

	return ext, dir, fileName
}

// joinPath recomposes the canonical full path from an entry's normalized
// triple, inverse of splitPath for any path that splitPath would itself
// produce (spec §3, Entry.full-path).
func joinPath(ext, dir, fileName string) string {
	var b strings.Builder
	if dir != noneMarker {
		b.WriteString(dir)
		b.WriteByte('/')
	}
	b.WriteString(fileName)
	if ext != noneMarker {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}
