package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
	"github.com/kehinde-elelu/aimechanics/pkg/train"
)

// loadModel returns the model named by --artifact, --model or, when both
// are empty, the registry's current model. The registry is opened only
// when needed.
func loadModel(ctx context.Context, id, artifact string) (*model.TrainedModel, error) {
	if artifact != "" {
		return model.LoadFile(artifact)
	}
	reg, err := openRegistry()
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	if id == "" {
		m, _, err := reg.LoadCurrent(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w (train a model or pass --model)", err)
		}
		return m, nil
	}
	full, err := reg.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return reg.Load(ctx, full)
}

// registrySource loads the current model from a registry opened for the
// duration of each call, so that training runs can write to it meanwhile.
type registrySource struct {
	cfg registry.Config
}

func (s registrySource) LoadCurrent(ctx context.Context) (*model.TrainedModel, *registry.Record, error) {
	reg, err := registry.Open(s.cfg)
	if err != nil {
		return nil, nil, err
	}
	defer reg.Close()
	return reg.LoadCurrent(ctx)
}

// reportTable lays a report out as per-class rows followed by the overall
// scores.
func reportTable(r *train.Report) ([]string, [][]string, []cli.Align) {
	headers := []string{"class", "precision", "recall", "f1", "support"}
	var rows [][]string
	for _, cm := range r.PerClass {
		rows = append(rows, []string{
			cm.Class.String(),
			fmt.Sprintf("%.3f", cm.Precision),
			fmt.Sprintf("%.3f", cm.Recall),
			fmt.Sprintf("%.3f", cm.F1),
			strconv.Itoa(cm.Support),
		})
	}
	rows = append(rows,
		[]string{"accuracy", "", "", fmt.Sprintf("%.3f", r.Accuracy), strconv.Itoa(r.Total)},
		[]string{"macro avg", "", "", fmt.Sprintf("%.3f", r.MacroF1), strconv.Itoa(r.Total)},
		[]string{"weighted avg", "", "", fmt.Sprintf("%.3f", r.WeightedF1), strconv.Itoa(r.Total)},
	)
	return headers, rows, []cli.Align{cli.AlignLeft, cli.AlignRight, cli.AlignRight, cli.AlignRight, cli.AlignRight}
}

// confusionTable lays out the confusion matrix, truth by row.
func confusionTable(r *train.Report) ([]string, [][]string, []cli.Align) {
	headers := []string{"truth \\ predicted"}
	aligns := []cli.Align{cli.AlignLeft}
	for _, c := range condition.All() {
		headers = append(headers, c.String())
		aligns = append(aligns, cli.AlignRight)
	}
	var rows [][]string
	for _, c := range condition.All() {
		row := []string{c.String()}
		for _, p := range condition.All() {
			row = append(row, strconv.Itoa(r.Confusion[c][p]))
		}
		rows = append(rows, row)
	}
	return headers, rows, aligns
}
