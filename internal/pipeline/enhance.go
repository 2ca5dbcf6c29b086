package pipeline

import (
	"image"

	"gocv.io/x/gocv"
)

// enhanceFrame prepares a frame for detection: lightness-weighted auto white
// balance on the Lab chroma channels, then CLAHE on the lightness channel.
// The caller owns the returned Mat.
func enhanceFrame(frame gocv.Mat) gocv.Mat {
	if frame.Empty() {
		return frame.Clone()
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(frame, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	lightness := gocv.NewMat()
	defer lightness.Close()
	channels[0].ConvertTo(&lightness, gocv.MatTypeCV32F)

	balanceChroma(channels[1], lightness)
	balanceChroma(channels[2], lightness)

	clahe := gocv.NewCLAHEWithParams(1.5, image.Pt(8, 8))
	defer clahe.Close()
	clahe.Apply(channels[0], &channels[0])

	gocv.Merge(channels, &lab)

	out := gocv.NewMat()
	gocv.CvtColor(lab, &out, gocv.ColorLabToBGR)
	return out
}

// balanceChroma shifts a chroma channel toward neutral gray, weighted by the
// pixel's lightness so dark regions are corrected less.
func balanceChroma(ch gocv.Mat, lightness gocv.Mat) {
	avg := ch.Mean().Val1

	shift := lightness.Clone()
	defer shift.Close()
	shift.MultiplyFloat(float32((avg - 128.0) * 0.5 / 255.0))

	cf := gocv.NewMat()
	defer cf.Close()
	ch.ConvertTo(&cf, gocv.MatTypeCV32F)
	gocv.Subtract(cf, shift, &cf)
	cf.ConvertTo(&ch, gocv.MatTypeCV8U)
}
