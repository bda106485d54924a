package log

import "log/slog"

func TraceID[T ~string](id T) slog.Attr {
	return slog.String("trace_id", string(id))
}

func StepName[T ~string](name T) slog.Attr {
	return slog.String("step", string(name))
}

func Topic[T ~string](topic T) slog.Attr {
	return slog.String("topic", string(topic))
}

func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

func Source(source string) slog.Attr {
	return slog.String("source", source)
}

func Flows[T ~string](flows []T) slog.Attr {
	names := make([]string, len(flows))
	for i, f := range flows {
		names[i] = string(f)
	}
	return slog.Any("flows", names)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
