package templating

import "context"

// Substitute walks a JSON-like value and evaluates every string leaf, mapping keys
// included. Keys always render to strings; other leaves keep native results.
// Numbers, booleans and nil are returned unchanged. The input is never modified.
func (r *Renderer) Substitute(ctx context.Context, value any, scope *Scope) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			k, err := r.Render(ctx, key, scope)
			if err != nil {
				return nil, err
			}
			e, err := r.Substitute(ctx, elem, scope)
			if err != nil {
				return nil, err
			}
			out[k] = e
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			e, err := r.Substitute(ctx, elem, scope)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil

	case string:
		return r.Evaluate(ctx, v, scope)

	default:
		return value, nil
	}
}

// SubstituteMap is Substitute for the common map-valued request fields.
func (r *Renderer) SubstituteMap(ctx context.Context, m map[string]any, scope *Scope) (map[string]any, error) {
	out, err := r.Substitute(ctx, m, scope)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}
