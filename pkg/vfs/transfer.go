package vfs

import "context"

// The helpers below implement move, copy and rename on top of the primitive
// operations of an Adapter: read the source, create it at the destination,
// then (for move and rename) delete the source. None of this is atomic. A
// failure after the create step leaves a partial or duplicate tree behind and
// is reported with the kind of the failing step.

// stater is implemented by adapters that can look a single path up.
type stater interface {
	stat(ctx context.Context, p string) Result[Entry]
}

// statEntry looks p up through the adapter's own lookup when it has one and
// in its parent listing otherwise.
func statEntry(ctx context.Context, a Adapter, p string) Result[Entry] {
	p = Clean(p)
	if p == Root {
		return OK(Entry{Path: Root, Kind: KindDirectory})
	}
	if s, ok := a.(stater); ok {
		return s.stat(ctx, p)
	}
	res := a.List(ctx, Parent(p))
	if !res.Success {
		return failAs[Entry](res)
	}
	name := Base(p)
	for _, e := range res.Payload {
		if e.Name == name {
			e.Path = p
			return OK(e)
		}
	}
	return Fail[Entry](newError(KindNotFound, "not found: %s", p))
}

func copyTree(ctx context.Context, a Adapter, src, dst string) Result[Entry] {
	src, dst = Clean(src), Clean(dst)
	if src == Root {
		return Fail[Entry](newError(KindInvalidArgument, "the working directory root cannot be copied"))
	}
	if IsWithin(src, dst) {
		return Fail[Entry](newError(KindInvalidArgument, "cannot copy %s into itself", src))
	}
	name := Base(dst)
	if err := ValidateName(name); err != nil {
		return Fail[Entry](err)
	}
	if err := ctx.Err(); err != nil {
		return Fail[Entry](err)
	}

	st := statEntry(ctx, a, src)
	if !st.Success {
		return st
	}

	if !st.Payload.IsDir() {
		content := a.ReadFile(ctx, src)
		if !content.Success {
			return failAs[Entry](content)
		}
		created := a.CreateFile(ctx, Parent(dst), name)
		if !created.Success {
			return created
		}
		if w := a.WriteFile(ctx, dst, content.Payload); !w.Success {
			return failAs[Entry](w)
		}
		created.Payload.Size = int64(len(content.Payload))
		return created
	}

	created := a.CreateDirectory(ctx, Parent(dst), name)
	if !created.Success {
		return created
	}
	children := a.List(ctx, src)
	if !children.Success {
		return failAs[Entry](children)
	}
	for _, ch := range children.Payload {
		if r := copyTree(ctx, a, Join(src, ch.Name), Join(dst, ch.Name)); !r.Success {
			return r
		}
	}
	return created
}

func moveTree(ctx context.Context, a Adapter, src, targetDir string) Result[Entry] {
	src = Clean(src)
	return relocate(ctx, a, src, Join(targetDir, Base(src)))
}

func renameTree(ctx context.Context, a Adapter, p, newName string) Result[Entry] {
	if err := ValidateName(newName); err != nil {
		return Fail[Entry](err)
	}
	p = Clean(p)
	return relocate(ctx, a, p, Join(Parent(p), newName))
}

func relocate(ctx context.Context, a Adapter, src, dst string) Result[Entry] {
	if src == dst {
		return statEntry(ctx, a, src)
	}
	r := copyTree(ctx, a, src, dst)
	if !r.Success {
		return r
	}
	if d := a.Delete(ctx, src); !d.Success {
		return failAs[Entry](d)
	}
	return r
}
