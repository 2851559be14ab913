package postfilter

import (
	"github.com/MeKo-Tech/twoview/internal/mempool"
)

// closeMask fills small gaps in a binary mask: dilation followed by erosion with a disc of
// diameter kernelSize. Buffers come from mempool; the returned slice must be released with
// mempool.PutFloat32.
func closeMask(mask []float32, width, height, kernelSize int) []float32 {
	out := mempool.GetFloat32(len(mask))
	copy(out, mask)
	if kernelSize <= 1 {
		return out
	}
	tmp := mempool.GetFloat32(len(mask))
	defer mempool.PutFloat32(tmp)

	dilate(out, tmp, width, height, kernelSize)
	erode(tmp, out, width, height, kernelSize)
	return out
}

type offset struct{ dx, dy int }

// disc returns the offsets with dx²+dy² ≤ (kernelSize/2)².
func disc(kernelSize int) []offset {
	half := kernelSize / 2
	var offs []offset
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			if dx*dx+dy*dy <= half*half {
				offs = append(offs, offset{dx, dy})
			}
		}
	}
	return offs
}

// dilate writes the maximum of src under the disc into dst.
func dilate(src, dst []float32, width, height, kernelSize int) {
	offs := disc(kernelSize)
	for y := range height {
		for x := range width {
			maxVal := float32(0)
			for _, o := range offs {
				nx, ny := x+o.dx, y+o.dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height && src[ny*width+nx] > maxVal {
					maxVal = src[ny*width+nx]
				}
			}
			dst[y*width+x] = maxVal
		}
	}
}

// erode writes the minimum of src under the disc into dst. Pixels outside the image are ignored,
// so the border does not erode the mask.
func erode(src, dst []float32, width, height, kernelSize int) {
	offs := disc(kernelSize)
	for y := range height {
		for x := range width {
			minVal := float32(1)
			for _, o := range offs {
				nx, ny := x+o.dx, y+o.dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height && src[ny*width+nx] < minVal {
					minVal = src[ny*width+nx]
				}
			}
			dst[y*width+x] = minVal
		}
	}
}
