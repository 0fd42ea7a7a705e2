package charts

import (
	"encoding/json"
	"fmt"

	"gosurv/internal/errors"
)

// Renderer turns a chart description into something a client can draw
type Renderer interface {
	Render(chart *Chart) ([]byte, error)
	ContentType() string
}

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// VegaLiteRenderer emits Vega-Lite v5 specifications drawn by vega-embed in the browser
type VegaLiteRenderer struct {
	Width  int
	Height int
}

// NewVegaLiteRenderer creates a renderer with the default plot size
func NewVegaLiteRenderer() *VegaLiteRenderer {
	return &VegaLiteRenderer{Width: 480, Height: 320}
}

// ContentType implements Renderer
func (r *VegaLiteRenderer) ContentType() string {
	return "application/vnd.vegalite.v5+json"
}

// Render implements Renderer
func (r *VegaLiteRenderer) Render(chart *Chart) ([]byte, error) {
	spec, err := r.Spec(chart)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode chart")
	}
	return data, nil
}

// Spec builds the Vega-Lite specification as a generic map
func (r *VegaLiteRenderer) Spec(chart *Chart) (map[string]interface{}, error) {
	if chart == nil {
		return nil, errors.InvalidChart("nothing to render", nil)
	}
	spec := map[string]interface{}{
		"$schema": vegaLiteSchema,
		"title":   chart.Title,
		"width":   r.Width,
		"height":  r.Height,
		"data":    map[string]interface{}{"values": chart.Rows},
	}

	switch chart.Kind {
	case KindScatter:
		spec["mark"] = map[string]interface{}{"type": "point", "filled": true, "opacity": 0.7}
		spec["encoding"] = map[string]interface{}{
			"x":       quantitative("x", chart.XTitle),
			"y":       quantitative("y", chart.YTitle),
			"tooltip": []interface{}{quantitative("x", chart.XTitle), quantitative("y", chart.YTitle)},
		}
	case KindBox:
		spec["mark"] = map[string]interface{}{"type": "boxplot", "extent": 1.5}
		spec["encoding"] = map[string]interface{}{
			"y": quantitative("value", chart.YTitle),
		}
	case KindPie:
		spec["mark"] = map[string]interface{}{"type": "arc", "tooltip": true}
		spec["encoding"] = map[string]interface{}{
			"theta": map[string]interface{}{"field": "count", "type": "quantitative", "stack": true},
			"color": map[string]interface{}{"field": "value", "type": "nominal", "sort": nil, "title": nil},
			"order": map[string]interface{}{"field": "count", "sort": "descending"},
		}
	case KindHeatmap:
		spec["layer"] = []interface{}{
			map[string]interface{}{
				"mark": "rect",
				"encoding": map[string]interface{}{
					"color": map[string]interface{}{
						"field": "r", "type": "quantitative", "title": "r",
						"scale": map[string]interface{}{"domain": []float64{-1, 1}, "scheme": "redblue", "reverse": true},
					},
				},
			},
			map[string]interface{}{
				"mark": map[string]interface{}{"type": "text", "fontSize": 10},
				"encoding": map[string]interface{}{
					"text": map[string]interface{}{"field": "r", "type": "quantitative", "format": ".2f"},
				},
			},
		}
		spec["encoding"] = map[string]interface{}{
			"x": map[string]interface{}{"field": "a", "type": "nominal", "title": nil, "sort": nil},
			"y": map[string]interface{}{"field": "b", "type": "nominal", "title": nil, "sort": nil},
		}
	case KindSurvival:
		x := map[string]interface{}{"field": "time", "type": "quantitative", "title": chart.XTitle}
		spec["layer"] = []interface{}{
			map[string]interface{}{
				"mark": map[string]interface{}{"type": "area", "interpolate": "step-after", "opacity": 0.25},
				"encoding": map[string]interface{}{
					"x":  x,
					"y":  map[string]interface{}{"field": "lower", "type": "quantitative", "title": chart.YTitle, "scale": map[string]interface{}{"domain": []float64{0, 1}}},
					"y2": map[string]interface{}{"field": "upper"},
				},
			},
			map[string]interface{}{
				"mark": map[string]interface{}{"type": "line", "interpolate": "step-after"},
				"encoding": map[string]interface{}{
					"x": x,
					"y": map[string]interface{}{"field": "survival", "type": "quantitative"},
				},
			},
		}
	default:
		return nil, errors.InvalidChart(fmt.Sprintf("cannot render chart kind %q", chart.Kind), nil)
	}
	return spec, nil
}

func quantitative(field, title string) map[string]interface{} {
	return map[string]interface{}{"field": field, "type": "quantitative", "title": title}
}
