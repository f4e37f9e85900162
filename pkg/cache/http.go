package cache

import (
	"net/http"
)

// MetadataFromResponse extracts the validation metadata an upstream response
// offers for later conditional requests. Returns nil if it offers none.
func MetadataFromResponse(resp *http.Response) map[string]string {
	if resp == nil {
		return nil
	}

	meta := make(map[string]string, 2)
	if etag := resp.Header.Get("ETag"); etag != "" {
		meta[MetaETag] = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		if _, err := http.ParseTime(lastMod); err == nil {
			meta[MetaLastModified] = lastMod
		}
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}

// ShouldMakeConditionalRequest reports whether the metadata carries an ETag
// or a Last-Modified value usable for a conditional request.
func ShouldMakeConditionalRequest(meta map[string]string) bool {
	return meta[MetaETag] != "" || meta[MetaLastModified] != ""
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to the request. ETag is preferred when both are known.
func AddConditionalHeaders(req *http.Request, meta map[string]string) {
	if req == nil {
		return
	}

	if etag := meta[MetaETag]; etag != "" {
		req.Header.Set("If-None-Match", etag)
	} else if lastMod := meta[MetaLastModified]; lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
}
