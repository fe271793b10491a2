// Package decode turns container-level audio (WAV, FLAC, Ogg Vorbis, MP3)
// into interleaved float32 sample buffers.
//
// The container is chosen from the MIME type attached to a Blob. When the tag
// is missing or unrecognised the first bytes of the payload are sniffed.
//
// Example:
//
//	buf, err := decode.Decode(decode.Blob{Data: data, MIMEType: "audio/ogg"})
//	if err != nil {
//		var de *decode.DecodeError
//		if errors.As(err, &de) { ... }
//	}
package decode
