package decoder

import "image"

// YUYVDecoder decodes packed YUYV 4:2:2 (Y0 U Y1 V) into a YCbCr image
// without converting colour; the scaler converts while it resamples.
type YUYVDecoder struct{}

func (YUYVDecoder) Decode(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, decodeErr("yuyv: bad size %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, decodeErr("yuyv: short frame %d bytes, want %d", len(data), width*height*2)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for x := 0; x < width/2; x++ {
			p := row[x*4 : x*4+4]
			img.Y[yOff+2*x] = p[0]
			img.Cb[cOff+x] = p[1]
			img.Y[yOff+2*x+1] = p[2]
			img.Cr[cOff+x] = p[3]
		}
	}
	return img, nil
}
