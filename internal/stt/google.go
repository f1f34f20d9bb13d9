package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"scribeflow/internal/media"
)

const (
	googleDefaultBaseURL = "https://speech.googleapis.com"
	googleScope          = "https://www.googleapis.com/auth/cloud-platform"

	// googleSyncLimitSeconds is the longest audio speech:recognize accepts.
	googleSyncLimitSeconds = 60
	// googleInlineLimitBytes is the largest inline audio payload.
	googleInlineLimitBytes = 10 << 20
)

// GoogleOptions configures the Cloud Speech-to-Text provider.
type GoogleOptions struct {
	ProjectID string
	// KeyData can be either:
	//   - An API key (39 characters, typically starts with "AIzaSy")
	//   - A file path to a JSON key file
	//   - A JSON string containing the service account credentials
	//   - Empty, to use application default credentials
	KeyData           string
	Language          string
	DefaultConfidence float64
	BaseURL           string
	PollInterval      time.Duration
	// HTTPClient replaces the credential-derived client when set.
	HTTPClient *http.Client
}

// GoogleProvider implements STT using Google Cloud Speech-to-Text v1 REST API
type GoogleProvider struct {
	projectID         string
	apiKey            string
	language          string
	defaultConfidence float64
	baseURL           string
	pollInterval      time.Duration
	httpClient        *http.Client
	converter         media.Converter
	logger            *slog.Logger

	readFile func(name string) ([]byte, error)
	remove   func(name string) error
}

// IsGoogleAPIKey reports whether keyData looks like an API key rather than
// service account credentials.
func IsGoogleAPIKey(keyData string) bool {
	k := strings.TrimSpace(keyData)
	return len(k) == 39 && strings.HasPrefix(k, "AIzaSy")
}

// NewGoogleProvider creates a new Google STT provider
func NewGoogleProvider(ctx context.Context, opts GoogleOptions, converter media.Converter, logger *slog.Logger) (*GoogleProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", EngineGoogle)

	p := &GoogleProvider{
		projectID:         opts.ProjectID,
		language:          opts.Language,
		defaultConfidence: opts.DefaultConfidence,
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		pollInterval:      opts.PollInterval,
		httpClient:        opts.HTTPClient,
		converter:         converter,
		logger:            logger,
		readFile:          os.ReadFile,
		remove:            os.Remove,
	}
	if p.baseURL == "" {
		p.baseURL = googleDefaultBaseURL
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 5 * time.Second
	}
	if p.language == "" {
		p.language = "en-US"
	}

	keyData := strings.TrimSpace(opts.KeyData)
	if IsGoogleAPIKey(keyData) {
		logger.Info("using API key authentication")
		p.apiKey = keyData
		if p.httpClient == nil {
			p.httpClient = &http.Client{}
		}
		return p, nil
	}

	if p.httpClient != nil {
		return p, nil
	}

	var creds *google.Credentials
	var err error
	if keyData == "" {
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
	} else {
		jsonData := []byte(keyData)
		if !strings.HasPrefix(keyData, "{") {
			logger.Info("reading service account key file", "path", keyData)
			jsonData, err = os.ReadFile(keyData)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file '%s': %w", keyData, err)
			}
		}
		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
		}
	}
	if p.projectID == "" {
		p.projectID = creds.ProjectID
	}

	// The token source outlives ctx, so it gets a background context.
	p.httpClient = oauth2.NewClient(context.Background(), creds.TokenSource)
	logger.Info("using service account authentication", "project", p.projectID)
	return p, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return EngineGoogle
}

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  googleAudio             `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string                   `json:"encoding"`
	SampleRateHertz            int                      `json:"sampleRateHertz"`
	LanguageCode               string                   `json:"languageCode"`
	EnableAutomaticPunctuation bool                     `json:"enableAutomaticPunctuation"`
	EnableWordTimeOffsets      bool                     `json:"enableWordTimeOffsets"`
	Model                      string                   `json:"model,omitempty"`
	DiarizationConfig          *googleDiarizationConfig `json:"diarizationConfig,omitempty"`
}

type googleDiarizationConfig struct {
	EnableSpeakerDiarization bool `json:"enableSpeakerDiarization"`
	MinSpeakerCount          int  `json:"minSpeakerCount"`
	MaxSpeakerCount          int  `json:"maxSpeakerCount"`
}

type googleAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type googleRecognizeResponse struct {
	Results []googleResult `json:"results"`
}

type googleResult struct {
	Alternatives  []googleAlternative `json:"alternatives"`
	ResultEndTime string              `json:"resultEndTime"`
	LanguageCode  string              `json:"languageCode"`
}

type googleAlternative struct {
	Transcript string       `json:"transcript"`
	Confidence float64      `json:"confidence"`
	Words      []googleWord `json:"words"`
}

type googleWord struct {
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Word       string `json:"word"`
	SpeakerTag int    `json:"speakerTag"`
}

type googleOperation struct {
	Name     string                   `json:"name"`
	Done     bool                     `json:"done"`
	Error    *googleStatus            `json:"error,omitempty"`
	Response *googleRecognizeResponse `json:"response,omitempty"`
}

type googleStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Transcribe converts the input to LINEAR16 and calls recognize, or
// longrunningrecognize with operation polling for audio over a minute.
func (p *GoogleProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	startTime := time.Now()

	wavPath, err := p.converter.Convert(ctx, req.Path, media.FormatWAV)
	if err != nil {
		return nil, FromConversion(EngineGoogle, err)
	}
	defer func() { _ = p.remove(wavPath) }()

	audioBytes, err := p.readFile(wavPath)
	if err != nil {
		return nil, &Error{Provider: EngineGoogle, Kind: KindUnavailable, Message: "failed to read converted audio", Err: err}
	}
	if len(audioBytes) > googleInlineLimitBytes {
		return nil, NewError(EngineGoogle, KindUnavailable, "converted audio is %d bytes, above the inline request limit", len(audioBytes))
	}

	language := p.language
	if lang := normalizeLanguage(req.Language); lang != "" {
		language = lang
	}

	body := googleRecognizeRequest{
		Config: googleRecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            16000,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			Model:                      "latest_long",
			DiarizationConfig: &googleDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          1,
				MaxSpeakerCount:          6,
			},
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(audioBytes)},
	}

	var resp *googleRecognizeResponse
	if req.Audio.DurationSeconds > googleSyncLimitSeconds {
		resp, err = p.recognizeLong(ctx, body)
	} else {
		resp = &googleRecognizeResponse{}
		err = p.doJSON(ctx, http.MethodPost, "/v1/speech:recognize", body, resp)
	}
	if err != nil {
		return nil, err
	}

	segments := NormalizeSegments(googleSegments(resp.Results), p.defaultConfidence)
	if len(segments) == 0 {
		return nil, noSpeech(EngineGoogle)
	}

	detected := language
	for _, r := range resp.Results {
		if r.LanguageCode != "" {
			detected = r.LanguageCode
			break
		}
	}

	p.logger.Info("transcription successful", "segments", len(segments), "duration", time.Since(startTime))
	return &Transcript{Segments: segments, Language: detected, Engine: EngineGoogle}, nil
}

func (p *GoogleProvider) recognizeLong(ctx context.Context, body googleRecognizeRequest) (*googleRecognizeResponse, error) {
	var op googleOperation
	if err := p.doJSON(ctx, http.MethodPost, "/v1/speech:longrunningrecognize", body, &op); err != nil {
		return nil, err
	}
	if op.Name == "" && !op.Done {
		return nil, NewError(EngineGoogle, KindUnavailable, "long running operation returned no name")
	}
	p.logger.Debug("polling long running operation", "operation", op.Name)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, FromTransport(EngineGoogle, ctx.Err())
		case <-ticker.C:
		}
		name := op.Name
		op = googleOperation{}
		if err := p.doJSON(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(name), nil, &op); err != nil {
			return nil, err
		}
		if op.Name == "" {
			op.Name = name
		}
	}

	if op.Error != nil {
		return nil, &Error{
			Provider: EngineGoogle,
			Kind:     grpcCodeKind(op.Error.Code),
			Message:  fmt.Sprintf("operation failed: %s %s", op.Error.Status, op.Error.Message),
		}
	}
	if op.Response == nil {
		return &googleRecognizeResponse{}, nil
	}
	return op.Response, nil
}

func (p *GoogleProvider) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Provider: EngineGoogle, Kind: KindInput, Message: "failed to marshal request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := p.baseURL + path
	if p.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Provider: EngineGoogle, Kind: KindUnavailable, Message: "failed to create request", Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey == "" && p.projectID != "" {
		req.Header.Set("x-goog-user-project", p.projectID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return FromTransport(EngineGoogle, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FromTransport(EngineGoogle, err)
	}
	p.logger.Debug("google response", "path", path, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return FromHTTPStatus(EngineGoogle, resp.StatusCode, resp.Header, googleErrorMessage(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Provider: EngineGoogle, Kind: KindUnavailable, Message: "failed to parse response", Err: err}
	}
	return nil
}

// googleErrorMessage extracts error.message from a Google error body.
func googleErrorMessage(body []byte) string {
	var wrapper struct {
		Error googleStatus `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Status + ": " + wrapper.Error.Message
	}
	return string(body)
}

// googleSegments turns recognition results into raw segments. With
// diarization, the last result repeats every word with a speaker tag; those
// words are grouped into one segment per speaker turn.
func googleSegments(results []googleResult) []Segment {
	for i := len(results) - 1; i >= 0; i-- {
		if len(results[i].Alternatives) == 0 {
			continue
		}
		alt := results[i].Alternatives[0]
		if hasSpeakerTags(alt.Words) {
			return speakerTurns(alt.Words, alt.Confidence)
		}
		break
	}

	var segments []Segment
	prevEnd := 0.0
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		start, end := prevEnd, parseGoogleDuration(r.ResultEndTime)
		if len(alt.Words) > 0 {
			start = parseGoogleDuration(alt.Words[0].StartTime)
			end = parseGoogleDuration(alt.Words[len(alt.Words)-1].EndTime)
		}
		segments = append(segments, Segment{
			Start:      start,
			End:        end,
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
		})
		prevEnd = end
	}
	return segments
}

func hasSpeakerTags(words []googleWord) bool {
	for _, w := range words {
		if w.SpeakerTag > 0 {
			return true
		}
	}
	return false
}

func speakerTurns(words []googleWord, confidence float64) []Segment {
	var segments []Segment
	var text []string
	var cur Segment
	curTag := -1

	flush := func() {
		if len(text) == 0 {
			return
		}
		cur.Text = strings.Join(text, " ")
		segments = append(segments, cur)
		text = nil
	}

	for _, w := range words {
		if w.SpeakerTag != curTag {
			flush()
			curTag = w.SpeakerTag
			cur = Segment{
				Start:      parseGoogleDuration(w.StartTime),
				Speaker:    fmt.Sprintf("Speaker %d", w.SpeakerTag),
				Confidence: confidence,
			}
		}
		cur.End = parseGoogleDuration(w.EndTime)
		text = append(text, w.Word)
	}
	flush()
	return segments
}

// parseGoogleDuration parses protobuf JSON durations such as "1.500s".
func parseGoogleDuration(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d.Seconds()
}

// grpcCodeKind maps google.rpc.Code values found in operation errors.
func grpcCodeKind(code int) Kind {
	switch code {
	case 1:
		return KindCancelled
	case 3, 9, 11:
		return KindInput
	case 7, 16:
		return KindAuth
	case 8:
		return KindQuota
	case 4, 10, 13, 14:
		return KindTransient
	default:
		return KindUnavailable
	}
}
