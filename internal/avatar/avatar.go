// Package avatar renders placeholder images for owners without a profile picture.
package avatar

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	gridSize = 5
	// DefaultSize is the rendered width and height of an identicon
	DefaultSize = 100
)

// StaticPlaceholder is served when generated placeholders are disabled
const StaticPlaceholder = "data:image/svg+xml;base64,PHN2ZyB2ZXJzaW9uPSIxLjEiIHZpZXdCb3g9IjAgMCAyNCAyNCIgaGVpZ2h0PSIxMDAiIHdpZHRoPSIxMDAiIHhtbG5zPSJodHRwOi8vd3d3LnczLm9yZy8yMDAwL3N2ZyI+PGcgaWQ9ImJvcmRlcnMtYW5kLWJhY2tncm91bmRzIiB0cmFuc2Zvcm09InRyYW5zbGF0ZSg1LDQpIj48cGF0aCBkPSJtMCAwaDEwdjFoLTl2MTRoMXYxaC0yeiIvPjxwYXRoIGQ9Im0xMCA0aDR2M2gtMXYtMmgtM3oiLz48cGF0aCBkPSJtMTQgMTZ2LTZoLTF2NWgtNXYxeiIvPjxwYXRoIGQ9Im0xMiAxNHYtM2gtMXYyaC0ydjF6IiBmaWxsPSIjYmNiY2MzIi8+PHBhdGggZD0ibTEwIDBoMXYxaDF2MWgxdjFoMXYxaC0xdi0xaC0xdi0xaC0xdjJoLTF6IiBmaWxsPSIjODc4Nzg3Ii8+PHBhdGggZD0ibTIgMmg4djNoMnYyaC00djVoLTJ2MWgtMnYxaC0yeiIgZmlsbD0iI2JjYmNjMyIvPjwvZz48ZyBpZD0ibGVmdGV5ZSIgdHJhbnNmb3JtPSJ0cmFuc2xhdGUoNSw0KSI+PHBhdGggZD0ibTUgM2gydjNoLTN2LTJoMXYxaDF2LTFoLTF6IiBmaWxsPSIjMDA4OTFlIi8+PHBhdGggZD0ibTUgNGgxdjFoLTF6IiBmaWxsPSIjMDBmMjQ4Ii8+PHBhdGggZD0ibTcgNGgxdjJoLTF2MWgtMnYtMWgyeiIvPjwvZz48ZyBpZD0icmlnaHRleWUiIHRyYW5zZm9ybT0idHJhbnNsYXRlKDUsNCkiPjxwYXRoIGQ9Im04IDdoM3YyaC0xdi0xaC0xdjFoMXYxaC0yeiIgZmlsbD0iIzAwNjRmYiIvPjxwYXRoIGQ9Im05IDhoMXYxaC0xeiIgZmlsbD0iIzAwZmJmZSIvPjxwYXRoIGQ9Im0xMCA5aDF2MWgtMXoiIGZpbGw9IiMwMDMyOTMiLz48cGF0aCBkPSJtMTEgN2gxdjJoLTF6Ii8+PHBhdGggZD0ibTggMTBoMnYxaC0yeiIvPjwvZz48ZyBpZD0ibW91dGgiIHRyYW5zZm9ybT0idHJhbnNsYXRlKDUsNCkiPjxwYXRoIGQ9Im0zIDhoMXYxaDF2MWgxdjFoMXYxaC0xdi0xaC0xdi0xaC0xdi0xaC0xeiIgZmlsbD0iI2ZmMzkwMCIvPjxwYXRoIGQ9Im0zIDloMXYxaDF2MWgxdjFoLTN6IiBmaWxsPSIjZjczYWUxIi8+PHBhdGggZD0ibTMgMTJoM3YxaC0zeiIvPjwvZz48L3N2Zz4="

// Identicon renders a horizontally symmetric 5x5 identicon for seed as SVG.
// The same seed and size always produce the same document.
func Identicon(seed string, size int) string {
	if size <= 0 {
		size = DefaultSize
	}
	hash := sha256.Sum256([]byte(seed))

	hue := int(binary.BigEndian.Uint16(hash[0:2]) % 360)
	fg := fmt.Sprintf("hsl(%d,55%%,50%%)", hue)
	bg := fmt.Sprintf("hsl(%d,40%%,94%%)", hue)

	// 8% padding on every side, the rest split into grid cells
	pad := float64(size) * 0.08
	cell := (float64(size) - 2*pad) / gridSize

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, size, size, size, size)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="%s"/>`, size, size, bg)

	bit := 0
	for col := 0; col < (gridSize+1)/2; col++ {
		for row := 0; row < gridSize; row++ {
			on := hash[2+bit/8]&(1<<(bit%8)) != 0
			bit++
			if !on {
				continue
			}
			y := pad + float64(row)*cell
			writeCell(&sb, pad+float64(col)*cell, y, cell, fg)
			if mirror := gridSize - 1 - col; mirror != col {
				writeCell(&sb, pad+float64(mirror)*cell, y, cell, fg)
			}
		}
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}

func writeCell(sb *strings.Builder, x, y, size float64, fill string) {
	fmt.Fprintf(sb, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"/>`, x, y, size, size, fill)
}

// DataURL encodes an SVG document as a base64 data URL
func DataURL(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// IdenticonURL is DataURL(Identicon(seed, size))
func IdenticonURL(seed string, size int) string {
	return DataURL(Identicon(seed, size))
}
