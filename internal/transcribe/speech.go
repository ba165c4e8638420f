package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSpeechURL is the Google Web Speech API v2 recognize endpoint.
const DefaultSpeechURL = "http://www.google.com/speech-api/v2/recognize"

// SpeechClient posts a whole waveform to a Google Web Speech style endpoint
// configured for one language. Implements SpeechRecognizer.
type SpeechClient struct {
	url      string
	key      string
	language string
	client   *http.Client
}

// speechResponse is one line of the newline-delimited JSON response. The
// first line is usually an empty {"result":[]}.
type speechResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string   `json:"transcript"`
			Confidence *float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
}

// NewSpeechClient creates a speech client. Empty url uses DefaultSpeechURL.
func NewSpeechClient(endpoint, key, language string, timeout time.Duration) *SpeechClient {
	if endpoint == "" {
		endpoint = DefaultSpeechURL
	}
	return &SpeechClient{
		url:      endpoint,
		key:      key,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (sc *SpeechClient) Name() string { return "google" }

// Language returns the configured recognition language.
func (sc *SpeechClient) Language() string { return sc.language }

// Recognize submits pcm as 16-bit mono L16 and returns the best transcript.
func (sc *SpeechClient) Recognize(ctx context.Context, pcm PCM) (string, error) {
	q := url.Values{}
	q.Set("client", "chromium")
	q.Set("lang", sc.language)
	q.Set("pFilter", "0")
	if sc.key != "" {
		q.Set("key", sc.key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.url+"?"+q.Encode(), bytes.NewReader(pcm.MonoPCM16()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d", pcm.SampleRate))

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(body))
	}
	return bestTranscript(body)
}

// bestTranscript picks the first alternative that carries a confidence, or
// the first alternative when none does.
func bestTranscript(body []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sr speechResponse
		if err := json.Unmarshal([]byte(line), &sr); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(sr.Result) == 0 || len(sr.Result[0].Alternative) == 0 {
			continue
		}
		alts := sr.Result[0].Alternative
		for _, a := range alts {
			if a.Confidence != nil {
				return a.Transcript, nil
			}
		}
		return alts[0].Transcript, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return "", ErrSpeechUnrecognized
}
