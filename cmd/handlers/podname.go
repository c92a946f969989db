package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/zircuit-labs/pod-identity/cmd/logger"
)

const (
	// PodNameRoute is the only functional route the service exposes
	PodNameRoute = "/get-podname"

	// PodNameEnvVar is set by the orchestrator, usually through the downward API
	PodNameEnvVar = "POD_NAME"

	// DefaultPodName is reported when PodNameEnvVar is absent
	DefaultPodName = "Pod name not set"
)

// PodIdentity is the response body of the pod name endpoint
type PodIdentity struct {
	PodName string `json:"pod_name"`
}

// lookupEnv is swapped in tests
var lookupEnv = os.LookupEnv

// LookupPodName resolves the pod name from the environment. A variable that
// is set but empty is reported as-is.
func LookupPodName() string {
	if name, ok := lookupEnv(PodNameEnvVar); ok {
		return name
	}
	return DefaultPodName
}

// PodNameHandler responds with the identity of the instance serving the request.
// The environment is read on every call so changes show up without a restart.
// It always returns 200 OK.
func PodNameHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(PodIdentity{PodName: LookupPodName()}); err != nil {
		// Status is already sent; the client most likely went away
		logger.FromContext(r.Context()).Debug("failed to write pod identity", "error", err)
	}
}
