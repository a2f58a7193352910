package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"speechd/internal/domain"
	"speechd/internal/tts"
)

// pollyMaxBatchCharacters is the SynthesizeSpeech input cap. Admitted requests
// may run up to the service's own text limit, so longer text is synthesized in
// sentence-bounded batches and the audio merged in order.
const pollyMaxBatchCharacters = 3000

// PollyAPI is the slice of the Polly client the provider uses.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyProvider synthesizes speech through AWS Polly.
type PollyProvider struct {
	client PollyAPI
}

// NewPollyProvider builds a Polly client from the ambient AWS credential
// chain.
func NewPollyProvider(ctx context.Context, region string) (*PollyProvider, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &PollyProvider{client: polly.NewFromConfig(cfg)}, nil
}

// NewPollyProviderWithClient wires an existing client, used by tests.
func NewPollyProviderWithClient(client PollyAPI) *PollyProvider {
	return &PollyProvider{client: client}
}

// Synthesize calls Polly SynthesizeSpeech once per batch and concatenates the
// audio streams in order. Polly does not report a duration, so
// DurationSeconds stays zero.
func (p *PollyProvider) Synthesize(ctx context.Context, req tts.ProviderRequest) (*tts.ProviderResult, error) {
	engine := pollytypes.EngineStandard
	if req.Quality == domain.QualityNeural {
		engine = pollytypes.EngineNeural
	}
	format := pollyFormat(req.Format)

	var audio []byte
	for _, batch := range splitBatches(req.Text) {
		out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
			Text:         aws.String(batch),
			VoiceId:      pollytypes.VoiceId(req.VoiceID),
			OutputFormat: format,
			Engine:       engine,
		})
		if err != nil {
			return nil, classifyPollyError(err)
		}
		chunk, err := io.ReadAll(out.AudioStream)
		_ = out.AudioStream.Close()
		if err != nil {
			return nil, &tts.ProviderError{Transient: true, Err: fmt.Errorf("read audio stream: %w", err)}
		}
		audio = append(audio, chunk...)
	}
	return &tts.ProviderResult{Audio: audio}, nil
}

// splitBatches cuts text into chunks of at most pollyMaxBatchCharacters
// characters, breaking at sentence boundaries where possible. A single
// sentence longer than the cap is split by characters.
func splitBatches(text string) []string {
	if utf8.RuneCountInString(text) <= pollyMaxBatchCharacters {
		return []string{text}
	}

	var batches []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			batches = append(batches, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range splitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		if n > pollyMaxBatchCharacters {
			flush()
			runes := []rune(sentence)
			for len(runes) > pollyMaxBatchCharacters {
				batches = append(batches, string(runes[:pollyMaxBatchCharacters]))
				runes = runes[pollyMaxBatchCharacters:]
			}
			if len(runes) > 0 {
				current.WriteString(string(runes))
				currentLen = len(runes)
			}
			continue
		}
		if currentLen+n > pollyMaxBatchCharacters {
			flush()
		}
		current.WriteString(sentence)
		currentLen += n
	}
	flush()
	return batches
}

// splitSentences splits after runs of sentence punctuation followed by
// whitespace, keeping the punctuation and trailing whitespace with the
// sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
		parts = append(parts, string(runes[start:i+1]))
		start = i + 1
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func pollyFormat(format string) pollytypes.OutputFormat {
	switch format {
	case "ogg_vorbis":
		return pollytypes.OutputFormatOggVorbis
	case "pcm":
		return pollytypes.OutputFormatPcm
	default:
		return pollytypes.OutputFormatMp3
	}
}

func classifyPollyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &tts.ProviderError{Transient: true, Err: err}
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ThrottlingException", "ServiceFailureException", "ServiceUnavailableException":
			return &tts.ProviderError{Transient: true, Err: err}
		}
		return &tts.ProviderError{Err: err}
	}
	// Transport-level failures with no service verdict are worth retrying.
	return &tts.ProviderError{Transient: true, Err: err}
}
