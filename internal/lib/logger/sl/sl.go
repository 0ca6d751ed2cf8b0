package sl

import "log/slog"

func Err(er error) slog.Attr {
	if er == nil {
		return slog.Attr{Key: "error", Value: slog.StringValue("<nil>")}
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(er.Error()),
	}
}
