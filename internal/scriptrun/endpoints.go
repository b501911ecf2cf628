package scriptrun

import (
	"context"
	"encoding/json"

	"github.com/example/scriptrun-bridge/internal/models"
)

// Backend is the transport surface real endpoints call into.
// *transport.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, username, password string) models.Outcome
	FetchSheetData(ctx context.Context, sheet string) models.Outcome
	SavePPC(ctx context.Context, payload any, activeUser string) models.Outcome
	SystemConfig(ctx context.Context, role string) models.Outcome
	NextSequence(ctx context.Context) models.Outcome
	TranscribeAndAnalyze(ctx context.Context, filename string, audio []byte, apiKey string) models.Outcome
}

// InvokeFunc binds legacy positional arguments to one backend call.
type InvokeFunc func(ctx context.Context, b Backend, args Args) models.Outcome

// Endpoint describes one legacy method. Real endpoints carry Invoke; stubs
// carry a JSON Placeholder and never perform I/O. Note, when set, is logged
// as a warning on every call.
type Endpoint struct {
	Name        string
	Kind        models.CallKind
	Invoke      InvokeFunc
	Placeholder json.RawMessage
	Note        string
}

// PPCSheet is the sheet backing the PPC views.
const PPCSheet = "PPCV3"

func remote(name string, fn InvokeFunc) Endpoint {
	return Endpoint{Name: name, Kind: models.CallKindReal, Invoke: fn}
}

func stub(name, placeholder string) Endpoint {
	return Endpoint{Name: name, Kind: models.CallKindStub, Placeholder: json.RawMessage(placeholder)}
}

const (
	emptyList   = `{"success":true,"data":[]}`
	emptyTable  = `{"success":true,"data":[],"headers":[]}`
	acknowledge = `{"success":true}`
)

// DefaultEndpoints returns the full legacy method table.
func DefaultEndpoints() []Endpoint {
	updateTask := remote("apiUpdateTask", func(ctx context.Context, b Backend, args Args) models.Outcome {
		user, err := args.String(2, "user", false)
		if err != nil {
			return invalid("apiUpdateTask", err)
		}
		data := args.Value(1)
		if data == nil {
			return invalid("apiUpdateTask", errMissing("data"))
		}
		return b.SavePPC(ctx, []any{data}, user)
	})
	updateTask.Note = "apiUpdateTask mapped to savePPC; the sheet argument is ignored"

	return []Endpoint{
		remote("apiLogin", func(ctx context.Context, b Backend, args Args) models.Outcome {
			username, err := args.String(0, "username", false)
			if err != nil {
				return invalid("apiLogin", err)
			}
			password, err := args.String(1, "password", false)
			if err != nil {
				return invalid("apiLogin", err)
			}
			return b.Login(ctx, username, password)
		}),
		remote("apiFetchStaffTrackerData", func(ctx context.Context, b Backend, args Args) models.Outcome {
			sheet, err := args.String(0, "sheetName", false)
			if err != nil {
				return invalid("apiFetchStaffTrackerData", err)
			}
			return b.FetchSheetData(ctx, sheet)
		}),
		remote("apiFetchPPCData", func(ctx context.Context, b Backend, _ Args) models.Outcome {
			return b.FetchSheetData(ctx, PPCSheet)
		}),
		updateTask,
		remote("apiSavePPCData", func(ctx context.Context, b Backend, args Args) models.Outcome {
			user, err := args.String(1, "activeUser", false)
			if err != nil {
				return invalid("apiSavePPCData", err)
			}
			return b.SavePPC(ctx, args.Value(0), user)
		}),
		remote("getSystemConfig", func(ctx context.Context, b Backend, args Args) models.Outcome {
			role, err := args.String(0, "role", false)
			if err != nil {
				return invalid("getSystemConfig", err)
			}
			return b.SystemConfig(ctx, role)
		}),
		remote("apiGetNextWorkOrderSeq", func(ctx context.Context, b Backend, _ Args) models.Outcome {
			return b.NextSequence(ctx)
		}),
		remote("apiTranscribeAndAnalyze", func(ctx context.Context, b Backend, args Args) models.Outcome {
			filename, err := args.String(0, "filename", false)
			if err != nil {
				return invalid("apiTranscribeAndAnalyze", err)
			}
			audio, err := args.Bytes(1, "audio")
			if err != nil {
				return invalid("apiTranscribeAndAnalyze", err)
			}
			apiKey, err := args.String(2, "apiKey", true)
			if err != nil {
				return invalid("apiTranscribeAndAnalyze", err)
			}
			return b.TranscribeAndAnalyze(ctx, filename, audio, apiKey)
		}),

		// Not migrated yet: answered locally so partially migrated views keep working.
		stub("apiLogout", acknowledge),
		stub("apiFetchCombinedCalendarData", emptyList),
		stub("apiFetchCascadeTree", `{"success":true,"tree":[]}`),
		stub("apiFetchDrafts", emptyList),
		stub("apiFetchInfoBankData", emptyTable),
		stub("uploadFileToDrive", `{"success":true,"url":"","fileId":""}`),
		stub("apiAddEmployee", acknowledge),
		stub("apiDeleteEmployee", acknowledge),
		stub("apiFetchProjectTasks", emptyList),
		stub("apiSaveProjectTask", acknowledge),
		stub("apiSaveSubProject", acknowledge),
		stub("apiSaveSite", acknowledge),
		stub("apiFetchWeeklyPlanData", emptyTable),
		stub("apiUpdatePPCV3", acknowledge),
		stub("apiFetchSalesHistory", emptyList),
		stub("apiSaveTrackerBatch", acknowledge),
		stub("apiSaveHabitLog", acknowledge),
		stub("apiSavePersonalEvent", acknowledge),
		stub("apiSyncDrafts", acknowledge),
		stub("apiClearDrafts", acknowledge),
	}
}
