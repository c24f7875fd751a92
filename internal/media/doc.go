// Package media inspects the images that flow through the conversion
// pipeline without decoding or encoding animations itself.
//
// Inspect validates an uploaded GIF and reports its frame count and
// dimensions, using libvips when it has been initialized and falling back to
// the standard library GIF decoder otherwise. VerifyFrame decodes one
// extracted still frame, and OutputInfo reads the header of a finished WebP
// or PNG file.
package media
