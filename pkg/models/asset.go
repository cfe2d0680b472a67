package models

import "time"

// AssetState tracks a media asset through acquisition and conversion.
type AssetState string

const (
	AssetPending     AssetState = "PENDING"
	AssetDownloading AssetState = "DOWNLOADING"
	AssetDownloaded  AssetState = "DOWNLOADED"
	AssetConverting  AssetState = "CONVERTING"
	AssetConverted   AssetState = "CONVERTED"
	AssetVerifying   AssetState = "VERIFYING"
	AssetVerified    AssetState = "VERIFIED"
	AssetInvalid     AssetState = "INVALID"
)

// MediaAsset is one source video tracked from the remote store to a
// verified, servable file. Staging files persist until an operator or the
// process removes them; the asset record does not own cleanup.
type MediaAsset struct {
	RemoteKey     string     `json:"remoteKey"`
	LocalPath     string     `json:"localPath,omitempty"`
	ConvertedPath string     `json:"convertedPath,omitempty"`
	State         AssetState `json:"state"`
}

// VideoInfo is the probed stream metadata of a local file.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"hasAudio"`
}

// VideoMetadata describes a remote store object.
type VideoMetadata struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	Updated     time.Time `json:"updatedAt"`
}
