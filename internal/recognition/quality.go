package recognition

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	// Quality score weights: area, sharpness, exposure.
	areaWeight      = 0.4
	sharpnessWeight = 0.4
	exposureWeight  = 0.2

	// Normalization references: a 100x100 face and a Laplacian variance of
	// 500 both count as fully sufficient.
	areaReference      = 10000.0
	sharpnessReference = 500.0

	// earlyStopQuality ends the multi-scale search once a candidate this
	// good has been found.
	earlyStopQuality = 0.6
)

// combineQuality folds face area, sharpness (Laplacian variance) and exposure
// closeness to mid-gray into a single score in [0,1].
func combineQuality(areaPx, laplacianVar, meanIntensity float64) float64 {
	areaScore := math.Min(areaPx/areaReference, 1.0)
	sharpScore := math.Min(laplacianVar/sharpnessReference, 1.0)
	exposureScore := 1.0 - math.Abs(meanIntensity-128.0)/128.0

	return areaWeight*areaScore + sharpnessWeight*sharpScore + exposureWeight*exposureScore
}

// assessQuality measures a face crop. Low-quality captures either get
// rejected outright or matched with a widened tolerance.
func assessQuality(face gocv.Mat) float64 {
	if face.Empty() {
		return 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if face.Channels() > 1 {
		gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)
	} else {
		face.CopyTo(&gray)
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	lapMean := gocv.NewMat()
	lapStd := gocv.NewMat()
	defer lapMean.Close()
	defer lapStd.Close()
	gocv.MeanStdDev(lap, &lapMean, &lapStd)
	std := lapStd.GetDoubleAt(0, 0)

	mean := gray.Mean().Val1
	area := float64(face.Cols() * face.Rows())

	return combineQuality(area, std*std, mean)
}

// adaptiveTolerance widens the base match tolerance for low-quality captures,
// trading a slightly looser acceptance against false rejections.
func adaptiveTolerance(base, quality float64) float64 {
	switch {
	case quality < 0.5:
		return math.Min(base+0.1, 0.75)
	case quality < 0.7:
		return math.Min(base+0.05, 0.70)
	default:
		return base
	}
}

// matchConfidence derives the reported confidence from distance, tolerance
// and capture quality. Matches accepted through a widened tolerance are
// discounted.
func matchConfidence(distance, tolerance, quality float64) float64 {
	c := 1.0 - math.Min(distance/tolerance, 1.0)
	if quality < 0.6 {
		c *= 0.9
	}
	return c
}

// enhanceFace applies local contrast normalization plus mild sharpening to a
// face crop, countering off-axis lighting before embedding extraction. The
// caller owns the returned Mat.
func enhanceFace(face gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if face.Channels() > 1 {
		gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)
	} else {
		gray = face.Clone()
	}
	defer gray.Close()

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(4, 4))
	defer clahe.Close()
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			kernel.SetFloatAt(r, c, -1)
		}
	}
	kernel.SetFloatAt(1, 1, 9)

	sharpened := gocv.NewMat()
	defer sharpened.Close()
	gocv.Filter2D(equalized, &sharpened, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.AddWeighted(equalized, 0.7, sharpened, 0.3, 0, &out)
	return out
}
