package watermark

import (
	"image"
	"math/rand"
)

// Blocks enumerates the top-left corners of the size*size blocks tiling a
// width*height plane in row-major order: increasing row, then increasing
// column. Blocks crossing the right or bottom edge are excluded. With a
// seed the order is a deterministic permutation of that list.
func Blocks(width, height, size int, seed *int64) []image.Point {
	if size <= 0 {
		return nil
	}
	cols, rows := width/size, height/size
	if cols <= 0 || rows <= 0 {
		return nil
	}
	blocks := make([]image.Point, 0, cols*rows)
	for r := range rows {
		for c := range cols {
			blocks = append(blocks, image.Pt(c*size, r*size))
		}
	}
	if seed != nil {
		rd := rand.New(rand.NewSource(*seed))
		rd.Shuffle(len(blocks), func(i, j int) {
			blocks[i], blocks[j] = blocks[j], blocks[i]
		})
	}
	return blocks
}

// TotalBlocks returns the number of whole blocks in a width*height plane.
func TotalBlocks(width, height, size int) int {
	if size <= 0 || width < size || height < size {
		return 0
	}
	return (width / size) * (height / size)
}
