package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultSGProURL is where Sequence Generator Pro serves its JSON API.
const DefaultSGProURL = "http://127.0.0.1:59590"

const (
	sgCaptureImage       = "SgCaptureImage"
	sgGetImagePath       = "SgGetImagePath"
	sgSolveImage         = "SgSolveImage"
	sgGetSolvedImageData = "SgGetSolvedImageData"
	sgGetDeviceStatus    = "SgGetDeviceStatus"

	solvingMessage = "Solving"
)

// solvedPrefixes mark a finished, successful solve in the result message.
var solvedPrefixes = []string{"Matched", "Solve t", "Valid s", "succeed"}

// SGPro talks to a Sequence Generator Pro style JSON-over-HTTP service.
type SGPro struct {
	base   string
	client *http.Client
}

func NewSGPro(baseURL string, client *http.Client) *SGPro {
	if baseURL == "" {
		baseURL = DefaultSGProURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SGPro{base: strings.TrimRight(baseURL, "/") + "/json/reply/", client: client}
}

func (s *SGPro) Name() string { return "sgpro" }

type sgCaptureRequest struct {
	BinningMode    int     `json:"BinningMode"`
	ExposureLength float64 `json:"ExposureLength"`
	Gain           string  `json:"Gain,omitempty"`
	Speed          string  `json:"Speed,omitempty"`
	FrameType      string  `json:"FrameType"`
	Path           string  `json:"Path,omitempty"`
	UseSubframe    bool    `json:"UseSubframe"`
	X              int     `json:"X"`
	Y              int     `json:"Y"`
	Width          int     `json:"Width"`
	Height         int     `json:"Height"`
}

type sgReceiptReply struct {
	Success bool   `json:"Success"`
	Message string `json:"Message"`
	Receipt string `json:"Receipt"`
}

type sgReceiptRequest struct {
	Receipt string `json:"Receipt"`
}

type sgMessageReply struct {
	Success bool   `json:"Success"`
	Message string `json:"Message"`
}

type sgSolveRequest struct {
	ImagePath              string  `json:"ImagePath"`
	RaHint                 float64 `json:"RaHint,omitempty"`
	DecHint                float64 `json:"DecHint,omitempty"`
	ScaleHint              float64 `json:"ScaleHint,omitempty"`
	BlindSolve             bool    `json:"BlindSolve"`
	UseFitsHeadersForHints bool    `json:"UseFitsHeadersForHints"`
}

type sgSolvedReply struct {
	Success     bool    `json:"Success"`
	Message     string  `json:"Message"`
	Ra          float64 `json:"Ra"`
	Dec         float64 `json:"Dec"`
	Scale       float64 `json:"Scale"`
	Angle       float64 `json:"Angle"`
	TimeToSolve float64 `json:"TimeToSolve"`
}

type sgDeviceRequest struct {
	Device string `json:"Device"`
}

type sgDeviceReply struct {
	Success bool   `json:"Success"`
	State   string `json:"State"`
	Message string `json:"Message"`
}

func (s *SGPro) StartCapture(ctx context.Context, req CaptureRequest) (string, error) {
	body := sgCaptureRequest{
		BinningMode:    req.Binning,
		ExposureLength: req.Exposure.Seconds(),
		Gain:           req.Gain,
		Speed:          req.Speed,
		FrameType:      "Light",
		Path:           req.Path,
		UseSubframe:    req.Subframe,
		X:              req.X,
		Y:              req.Y,
		Width:          req.Width,
		Height:         req.Height,
	}
	var reply sgReceiptReply
	if err := s.post(ctx, sgCaptureImage, body, &reply); err != nil {
		return "", err
	}
	if !reply.Success {
		return "", fmt.Errorf("%w: %s", ErrCaptureFailed, reply.Message)
	}
	return reply.Receipt, nil
}

func (s *SGPro) ImagePath(ctx context.Context, receipt string) (string, bool, error) {
	var reply sgMessageReply
	if err := s.post(ctx, sgGetImagePath, sgReceiptRequest{Receipt: receipt}, &reply); err != nil {
		return "", false, err
	}
	if !reply.Success {
		return "", false, nil
	}
	return reply.Message, true, nil
}

func (s *SGPro) StartSolve(ctx context.Context, req SolveRequest) (string, error) {
	body := sgSolveRequest{
		ImagePath:  req.ImagePath,
		RaHint:     req.RaHint,
		DecHint:    req.DecHint,
		ScaleHint:  req.ScaleHint,
		BlindSolve: req.Blind,
	}
	var reply sgReceiptReply
	if err := s.post(ctx, sgSolveImage, body, &reply); err != nil {
		return "", err
	}
	if !reply.Success {
		return "", fmt.Errorf("%w: %s", ErrSolveFailed, reply.Message)
	}
	return reply.Receipt, nil
}

func (s *SGPro) SolveStatus(ctx context.Context, receipt string) (SolveResult, bool, error) {
	var reply sgSolvedReply
	if err := s.post(ctx, sgGetSolvedImageData, sgReceiptRequest{Receipt: receipt}, &reply); err != nil {
		return SolveResult{}, false, err
	}
	msg := strings.TrimSpace(reply.Message)
	if msg == solvingMessage {
		return SolveResult{}, false, nil
	}
	res := SolveResult{Message: msg}
	if isSolvedMessage(msg) {
		res.Success = true
		res.RaJ2000 = reply.Ra
		res.DecJ2000 = reply.Dec
		res.Scale = reply.Scale
		res.Angle = reply.Angle
		res.TimeToSolve = reply.TimeToSolve
	}
	return res, true, nil
}

func isSolvedMessage(msg string) bool {
	for _, p := range solvedPrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

func (s *SGPro) Status(ctx context.Context) (DeviceStatus, error) {
	st := DeviceStatus{Backend: s.Name()}
	var camera sgDeviceReply
	if err := s.post(ctx, sgGetDeviceStatus, sgDeviceRequest{Device: "Camera"}, &camera); err != nil {
		return st, err
	}
	var solver sgDeviceReply
	if err := s.post(ctx, sgGetDeviceStatus, sgDeviceRequest{Device: "PlateSolver"}, &solver); err != nil {
		return st, err
	}
	st.Camera = deviceState(camera)
	st.Solver = deviceState(solver)
	st.Message = camera.Message
	return st, nil
}

func deviceState(r sgDeviceReply) string {
	if !r.Success {
		return "ERROR"
	}
	return r.State
}

func (s *SGPro) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
