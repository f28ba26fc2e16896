package u

// FitWithin scales (srcWidth, srcHeight) down to fit inside the box, keeping
// the aspect ratio. It never scales up: sources already inside the box are
// returned unchanged with resize=false.
func FitWithin(srcWidth int, srcHeight int, boxWidth int, boxHeight int) (width int, height int, resize bool) {
	if srcWidth <= boxWidth && srcHeight <= boxHeight {
		return srcWidth, srcHeight, false
	}

	wRatio := float64(boxWidth) / float64(srcWidth)
	hRatio := float64(boxHeight) / float64(srcHeight)
	ratio := wRatio
	if hRatio < ratio {
		ratio = hRatio
	}

	width = int(float64(srcWidth)*ratio + 0.5)
	height = int(float64(srcHeight)*ratio + 0.5)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height, true
}
