package nnort

import (
	"github.com/ppecam/ppecam/pkg/nn"
)

// fillInputTensor converts an RGB crop into the model's NCHW float32 input,
// scaling with nearest-neighbor sampling if the crop size differs from the
// model resolution. Values are normalized to [0,1].
func fillInputTensor(dst []float32, img nn.ImageCrop, modelWidth, modelHeight int) {
	plane := modelWidth * modelHeight
	stride := img.Stride()
	for y := 0; y < modelHeight; y++ {
		srcY := img.CropY + y*img.CropHeight/modelHeight
		row := srcY * stride
		for x := 0; x < modelWidth; x++ {
			srcX := img.CropX + x*img.CropWidth/modelWidth
			p := row + srcX*3
			di := y*modelWidth + x
			dst[di] = float32(img.Pixels[p]) / 255
			dst[plane+di] = float32(img.Pixels[p+1]) / 255
			dst[2*plane+di] = float32(img.Pixels[p+2]) / 255
		}
	}
}

// decodeYolov8 turns the raw [1, 4+numClasses, anchors] output tensor into
// detections in model coordinates. Layout is row-major: row 0..3 hold
// cx,cy,w,h and the remaining rows hold per-class scores.
func decodeYolov8(raw []float32, anchors, numClasses int, probabilityThreshold float32) []nn.ObjectDetection {
	objects := []nn.ObjectDetection{}
	for i := 0; i < anchors; i++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			score := raw[(4+c)*anchors+i]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < probabilityThreshold {
			continue
		}
		cx := raw[i]
		cy := raw[anchors+i]
		w := raw[2*anchors+i]
		h := raw[3*anchors+i]
		objects = append(objects, nn.ObjectDetection{
			Class:      bestClass,
			Confidence: bestScore,
			Box: nn.Rect{
				X:      int(cx - w/2),
				Y:      int(cy - h/2),
				Width:  int(w),
				Height: int(h),
			},
		})
	}
	return objects
}

// scaleToImage maps boxes from model coordinates back to crop coordinates.
func scaleToImage(objects []nn.ObjectDetection, modelWidth, modelHeight, imageWidth, imageHeight int) {
	if modelWidth == imageWidth && modelHeight == imageHeight {
		return
	}
	for i := range objects {
		b := &objects[i].Box
		b.X = b.X * imageWidth / modelWidth
		b.Y = b.Y * imageHeight / modelHeight
		b.Width = b.Width * imageWidth / modelWidth
		b.Height = b.Height * imageHeight / modelHeight
	}
}
