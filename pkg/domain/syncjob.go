package domain

import "encoding/json"

// SyncJobPayload is the wire format carried on the NAS_FILE_SYNC queue,
// produced by the upload engines and trash/restore/move/rename
// handlers, consumed by the sync worker.
type SyncJobPayload struct {
	FileID             string `json:"fileId"`
	Action             string `json:"action"`
	SyncEventID        string `json:"syncEventId,omitempty"`
	MultipartSessionID string `json:"multipartSessionId,omitempty"`
}

// Marshal encodes the payload for JobQueue.Add.
func (p SyncJobPayload) Marshal() []byte {
	data, _ := json.Marshal(p)
	return data
}

// UnmarshalSyncJobPayload decodes a NAS_FILE_SYNC job's data.
func UnmarshalSyncJobPayload(data []byte) (SyncJobPayload, error) {
	var p SyncJobPayload
	err := json.Unmarshal(data, &p)
	return p, err
}
