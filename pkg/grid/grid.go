// Package grid converts flat framebuffer indices into display
// coordinates. The display buffer is stored row-major, so renderers
// that walk it as a single slice use this to place each cell.
package grid

// GetGridCoords converts a flat row-major cell index into (x, y)
// coordinates on a grid with the given number of columns.
func GetGridCoords(index, cols int) (int, int) {
	return index % cols, index / cols
}
