package audio

import (
	"errors"
	"fmt"
)

// ErrNotAudio is returned when an assembled payload does not look like any
// supported audio format.
var ErrNotAudio = errors.New("payload does not look like audio data")

// Format identifies the detected container of an assembled payload.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatPCM Format = "pcm"
)

// minPCMSize is the smallest payload treated as headerless raw PCM. Anything
// shorter with no recognizable container is noise, not an utterance.
const minPCMSize = 1000

// DetectFormat sniffs the container of an audio payload. It recognizes WAV
// (RIFF/WAVE) and MP3 (ID3 tag or a frame sync at the payload head);
// sufficiently large binary blobs of even length are assumed to be raw
// PCM-16. The sync check must stay head-only: PCM samples near full scale
// produce 0xFF bytes throughout the stream, so scanning the body would
// misroute real audio.
func DetectFormat(data []byte) (Format, error) {
	if len(data) < 44 {
		return "", fmt.Errorf("%w: only %d bytes", ErrNotAudio, len(data))
	}

	if string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV, nil
	}

	if string(data[0:3]) == "ID3" {
		return FormatMP3, nil
	}

	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3, nil
	}

	if len(data) > minPCMSize && len(data)%2 == 0 {
		return FormatPCM, nil
	}

	return "", ErrNotAudio
}

// Assemble concatenates the ordered chunks of one utterance and normalizes
// the result into a payload the transcription API accepts: WAV and MP3 pass
// through untouched, raw PCM is wrapped in a WAV container at sampleRate.
func Assemble(chunks [][]byte, sampleRate int) ([]byte, Format, error) {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total == 0 {
		return nil, "", fmt.Errorf("%w: empty utterance", ErrNotAudio)
	}

	data := make([]byte, 0, total)
	for _, c := range chunks {
		data = append(data, c...)
	}

	format, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}

	if format == FormatPCM {
		wrapped, err := WrapPCM(data, sampleRate)
		if err != nil {
			return nil, "", fmt.Errorf("failed to wrap PCM payload: %w", err)
		}
		return wrapped, FormatWAV, nil
	}

	return data, format, nil
}
