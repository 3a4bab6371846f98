package remote

// existsResponse is the reply to GET {api}/exists.
type existsResponse struct {
	Exists bool `json:"exists"`
}

// batchExistsRequest is the body of POST {api}/batch_exists.
type batchExistsRequest struct {
	Paths []string `json:"paths"`
}

// apiResponse is the common envelope of the app's POST endpoints.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Results map[string]bool `json:"results"`
}

// ocsCapabilities mirrors the slice of the OCS capabilities document we
// care about: capabilities.<app>.features.batch_exists.
type ocsCapabilities struct {
	OCS struct {
		Data struct {
			Capabilities map[string]struct {
				Features struct {
					BatchExists bool `json:"batch_exists"`
				} `json:"features"`
			} `json:"capabilities"`
		} `json:"data"`
	} `json:"ocs"`
}
