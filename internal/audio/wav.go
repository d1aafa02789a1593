package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavHeaderSize   = 44
	minFmtChunkSize = 16
	wavFormatPCM    = 1
	bitDepth16      = 16
)

// ErrNotWAV is returned when a stream does not start with a RIFF/WAVE header
var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// WAVFormat describes the PCM layout found in a WAV header
type WAVFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
	DataSize   int64
}

// EncodeWAV wraps mono 16-bit samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const channels, bitsPerSample = 1, 16

	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	wav := make([]byte, wavHeaderSize+dataSize)

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(wav[22:24], channels)
	binary.LittleEndian.PutUint32(wav[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], bitsPerSample)

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))
	copy(wav[44:], SamplesToBytes(samples))

	return wav
}

// ReadWAVHeader consumes the header chunks of a WAV stream and returns the
// format together with a reader limited to the data chunk. Only 16-bit PCM is
// accepted.
func ReadWAVHeader(r io.Reader) (WAVFormat, io.Reader, error) {
	var format WAVFormat

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return format, nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return format, nil, ErrNotWAV
	}

	sawFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return format, nil, errors.New("data chunk not found")
			}
			return format, nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < minFmtChunkSize {
				return format, nil, errors.New("fmt chunk too small")
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return format, nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if code := binary.LittleEndian.Uint16(data[0:2]); code != wavFormatPCM {
				return format, nil, fmt.Errorf("unsupported audio format code: %d (only PCM supported)", code)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[4:8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(data[14:16]))
			if format.BitDepth != bitDepth16 {
				return format, nil, fmt.Errorf("unsupported PCM bit depth: %d", format.BitDepth)
			}
			if format.Channels < 1 {
				return format, nil, fmt.Errorf("invalid channel count: %d", format.Channels)
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return format, nil, errors.New("data chunk before fmt chunk")
			}
			format.DataSize = size
			return format, io.LimitReader(r, size), nil
		default:
			// chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return format, nil, fmt.Errorf("failed to skip chunk %s: %w", id, err)
			}
		}
	}
}

// Downmix averages interleaved multi-channel samples into mono
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
