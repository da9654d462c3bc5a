package upload

// ReplaceFiles returns tree with every *File replaced by a *Placeholder and
// appends the files to *files in depth-first order, so that each
// placeholder's MultipartIndex is the file's position in *files. tree is not
// modified: containers are copied only when something below them changed,
// and unchanged subtrees are returned as the same pointers.
func ReplaceFiles(tree Value, files *[]*File) Value {
	v, _ := replace(tree, files)
	return v
}

func replace(v Value, files *[]*File) (Value, bool) {
	switch t := v.(type) {
	case *File:
		if t == nil {
			return v, false
		}
		*files = append(*files, t)
		return &Placeholder{
			MultipartIndex: len(*files) - 1,
			Name:           t.Name,
			MimeType:       t.ContentType(),
			SizeBytes:      t.Size,
		}, true

	case *Object:
		if t == nil {
			return v, false
		}
		var out *Object
		for i, f := range t.Fields {
			nv, changed := replace(f.Value, files)
			if !changed {
				continue
			}
			if out == nil {
				out = &Object{Fields: append([]Field(nil), t.Fields...)}
			}
			out.Fields[i].Value = nv
		}
		if out == nil {
			return t, false
		}
		return out, true

	case *Array:
		if t == nil {
			return v, false
		}
		var out *Array
		for i, item := range t.Items {
			nv, changed := replace(item, files)
			if !changed {
				continue
			}
			if out == nil {
				out = &Array{Items: append([]Value(nil), t.Items...)}
			}
			out.Items[i] = nv
		}
		if out == nil {
			return t, false
		}
		return out, true

	default:
		return v, false
	}
}
