package scriptrun

import (
	"fmt"

	"github.com/example/scriptrun-bridge/internal/models"
)

// InvalidCallPrefix starts the message of calls rejected before any I/O.
const InvalidCallPrefix = "Invalid Call: "

func invalid(method string, err error) models.Outcome {
	return models.NewFailure(models.FailureInvalidCall, fmt.Sprintf("%s%s: %v", InvalidCallPrefix, method, err))
}

func errMissing(name string) error {
	return fmt.Errorf("missing argument %s", name)
}
