package insight

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stream and group names shared by producers and workers.
const (
	StreamJobs       = "insight.jobs"
	StreamResults    = "insight.results"
	StreamFaces      = "insight.faces"
	StreamAggregated = "insight.aggregated"
	StreamSyncTasks  = "search.sync"

	GroupAggregator = "aggregator"
	GroupSearchSync = "search-sync"
)

// Service identifies which analysis produced an InsightResult.
type Service string

const (
	ServiceModeration Service = "moderation"
	ServiceTagging    Service = "tagging"
	ServiceScene      Service = "scene"
	ServiceCaption    Service = "caption"
)

// ErrMalformed marks payloads that can never be processed. Consumers treat
// it as fatal: retrying a schema violation cannot help.
var ErrMalformed = errors.New("malformed message")

// ImageProcessingJob announces one media item of a post entering the
// pipeline. Produced once per media item by the backend; immutable.
type ImageProcessingJob struct {
	PostID        string `json:"postId"`
	MediaID       string `json:"mediaId"`
	MediaURL      string `json:"mediaUrl"`
	UploaderID    string `json:"uploaderId"`
	CorrelationID string `json:"correlationId"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// InsightResult carries one analysis outcome for a media item. The payload
// shape depends on Service; use Decode* to obtain the typed variant.
type InsightResult struct {
	PostID    string          `json:"postId"`
	MediaID   string          `json:"mediaId"`
	Service   Service         `json:"service"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`

	CorrelationID string `json:"correlationId,omitempty"`
}

// ModerationPayload is the safety verdict for one media item.
type ModerationPayload struct {
	IsSafe     bool    `json:"isSafe"`
	Confidence float64 `json:"confidence"`
}

// TaggingPayload lists object/content tags detected in one media item.
type TaggingPayload struct {
	Tags []string `json:"tags"`
}

// ScenePayload lists scene labels detected in one media item.
type ScenePayload struct {
	Scenes []string `json:"scenes"`
}

// CaptionPayload is the generated caption for one media item.
type CaptionPayload struct {
	Caption string `json:"caption"`
}

// Face is a single detected face.
type Face struct {
	FaceID     string    `json:"faceId"`
	BBox       []float64 `json:"bbox"`
	Embedding  []float64 `json:"embedding,omitempty"`
	Confidence float64   `json:"confidence"`
}

// FaceResult carries the face detections for one media item.
type FaceResult struct {
	PostID        string `json:"postId"`
	MediaID       string `json:"mediaId"`
	FacesDetected int    `json:"facesDetected"`
	Faces         []Face `json:"faces"`

	CorrelationID string `json:"correlationId,omitempty"`
}

// AggregatedInsight is the single published outcome of aggregating all
// analysis for a post. IsPartial is set when the wait window elapsed before
// every discovered media item reported.
type AggregatedInsight struct {
	PostID            string   `json:"postId"`
	MediaCount        int      `json:"mediaCount"`
	AggregatedTags    []string `json:"aggregatedTags"`
	AggregatedScenes  []string `json:"aggregatedScenes"`
	TotalFaces        int      `json:"totalFaces"`
	IsSafe            bool     `json:"isSafe"`
	InferredEventType string   `json:"inferredEventType"`
	CombinedCaption   string   `json:"combinedCaption"`
	HasMultipleImages bool     `json:"hasMultipleImages"`
	CorrelationID     string   `json:"correlationId"`
	IsPartial         bool     `json:"isPartial"`
}

// SyncTask instructs the synchronization worker to index or delete one
// document in a search index collection.
type SyncTask struct {
	Operation    string                 `json:"operation"`
	IndexType    string                 `json:"indexType"`
	DocumentID   string                 `json:"documentId"`
	DocumentData map[string]interface{} `json:"documentData,omitempty"`
}

func validService(s Service) bool {
	switch s {
	case ServiceModeration, ServiceTagging, ServiceScene, ServiceCaption:
		return true
	}
	return false
}

// DecodeJob parses an ImageProcessingJob, validating required identifiers.
func DecodeJob(b []byte) (ImageProcessingJob, error) {
	var j ImageProcessingJob
	if err := json.Unmarshal(b, &j); err != nil {
		return ImageProcessingJob{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if j.PostID == "" || j.MediaID == "" {
		return ImageProcessingJob{}, fmt.Errorf("%w: job missing postId or mediaId", ErrMalformed)
	}
	return j, nil
}

// DecodeResult parses an InsightResult envelope, validating identifiers and
// the service tag. The payload itself is decoded lazily by the typed
// accessors below.
func DecodeResult(b []byte) (InsightResult, error) {
	var r InsightResult
	if err := json.Unmarshal(b, &r); err != nil {
		return InsightResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.PostID == "" || r.MediaID == "" {
		return InsightResult{}, fmt.Errorf("%w: result missing postId or mediaId", ErrMalformed)
	}
	if !validService(r.Service) {
		return InsightResult{}, fmt.Errorf("%w: unknown service %q", ErrMalformed, r.Service)
	}
	return r, nil
}

// DecodeFaceResult parses a FaceResult, validating required identifiers.
func DecodeFaceResult(b []byte) (FaceResult, error) {
	var f FaceResult
	if err := json.Unmarshal(b, &f); err != nil {
		return FaceResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.PostID == "" || f.MediaID == "" {
		return FaceResult{}, fmt.Errorf("%w: face result missing postId or mediaId", ErrMalformed)
	}
	if f.FacesDetected == 0 {
		f.FacesDetected = len(f.Faces)
	}
	return f, nil
}

// Moderation decodes the payload of a moderation result.
func (r InsightResult) Moderation() (ModerationPayload, error) {
	var p ModerationPayload
	if r.Service != ServiceModeration {
		return p, fmt.Errorf("%w: not a moderation result", ErrMalformed)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// Tagging decodes the payload of a tagging result.
func (r InsightResult) Tagging() (TaggingPayload, error) {
	var p TaggingPayload
	if r.Service != ServiceTagging {
		return p, fmt.Errorf("%w: not a tagging result", ErrMalformed)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// Scene decodes the payload of a scene result.
func (r InsightResult) Scene() (ScenePayload, error) {
	var p ScenePayload
	if r.Service != ServiceScene {
		return p, fmt.Errorf("%w: not a scene result", ErrMalformed)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// Caption decodes the payload of a caption result.
func (r InsightResult) Caption() (CaptionPayload, error) {
	var p CaptionPayload
	if r.Service != ServiceCaption {
		return p, fmt.Errorf("%w: not a caption result", ErrMalformed)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// DecodeSyncTask parses a SyncTask, validating operation and index type.
func DecodeSyncTask(b []byte) (SyncTask, error) {
	var t SyncTask
	if err := json.Unmarshal(b, &t); err != nil {
		return SyncTask{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if t.Operation != "index" && t.Operation != "delete" {
		return SyncTask{}, fmt.Errorf("%w: unknown operation %q", ErrMalformed, t.Operation)
	}
	if t.DocumentID == "" {
		return SyncTask{}, fmt.Errorf("%w: sync task missing documentId", ErrMalformed)
	}
	if t.Operation == "index" && t.DocumentData == nil {
		return SyncTask{}, fmt.Errorf("%w: index task missing documentData", ErrMalformed)
	}
	return t, nil
}
