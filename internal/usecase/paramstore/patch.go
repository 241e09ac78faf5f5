package paramstore

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/trace"

	"scenetuner/internal/domain"
	"scenetuner/internal/infra/tracer"
	"scenetuner/internal/usecase/extract"
)

// patch writes v into the backing script. Failures are logged and leave the
// in-memory value as it is.
func (s *Store) patch(ctx context.Context, name string, v domain.Value) {
	if s.path == "" {
		return
	}
	_, span := tracer.StartSpan(ctx, "paramstore.patch",
		trace.WithAttributes(tracer.StringAttr("param", name), tracer.StringAttr("path", s.path)))
	defer span.End()

	if err := PatchFile(s.path, name, v); err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("script patch failed, keeping in-memory value",
			"path", s.path, "param", name, "error", err)
		return
	}
	tracer.SetOK(span)
}

// PatchFile rewrites the value expression of one parameter in the script at
// path. The file is re-read and re-parsed on every call, and only the bytes
// of the value expression change.
func PatchFile(path, name string, v domain.Value) error {
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewSubSystemError("paramstore", "PatchFile", domain.ErrPersistence, err.Error())
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return domain.NewSubSystemError("paramstore", "PatchFile", domain.ErrPersistence, err.Error())
	}
	out, err := PatchSource(src, name, v)
	if err != nil {
		return err
	}
	if bytes.Equal(out, src) {
		return nil
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return domain.NewSubSystemError("paramstore", "PatchFile", domain.ErrPersistence, err.Error())
	}
	return nil
}

// PatchSource returns src with the value expression of name replaced by the
// Python literal of v.
func PatchSource(src []byte, name string, v domain.Value) ([]byte, error) {
	decl, err := extract.Locate(src)
	if err != nil {
		return nil, domain.WrapOp("PatchSource", err)
	}
	entry, ok := decl.Lookup(name)
	if !ok {
		return nil, domain.NewSubSystemError("paramstore", "PatchSource", domain.ErrNotFound,
			fmt.Sprintf("parameter %q not declared in source", name))
	}
	if entry.Value == nil {
		return nil, domain.NewSubSystemError("paramstore", "PatchSource", domain.ErrSchema,
			fmt.Sprintf("parameter %q has no value key", name))
	}

	lit := v.PythonLiteral()
	out := make([]byte, 0, len(src)+len(lit))
	out = append(out, src[:entry.Value.Start]...)
	out = append(out, lit...)
	out = append(out, src[entry.Value.End:]...)
	return out, nil
}
