package internal

// DelegateApplyChunk is a callback function type invoked right before a chunk is applied
type DelegateApplyChunk func(chunk Chunk)

// DelegateDownloadProgress is a callback function type to report how many patch bytes arrived so far
type DelegateDownloadProgress func(receivedBytes, totalBytes int64)
