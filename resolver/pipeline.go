package resolver

import (
	"github.com/mwantia/assetloader/data"
)

// Transformer turns one stream into another. It owns its input: when it
// fails, it closes the stream it was given.
type Transformer func(data.Stream) (data.Stream, error)

// Stage is a named step of a pipeline.
type Stage struct {
	Name      string
	Transform Transformer
}

// Pipeline is the ordered list of transformers applied to the stream of one
// resolution. It is assembled per resolution and run once.
type Pipeline struct {
	stages []Stage
}

// Then appends a stage.
func (p *Pipeline) Then(name string, t Transformer) *Pipeline {
	p.stages = append(p.stages, Stage{
		Name:      name,
		Transform: t,
	})
	return p
}

func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Names lists the stages in the order they are applied.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name)
	}
	return names
}

// Run applies every stage to src in turn. The first failing stage ends the
// run; it has already closed what it was given.
func (p *Pipeline) Run(src data.Stream) (data.Stream, error) {
	stream := src
	for _, s := range p.stages {
		next, err := s.Transform(stream)
		if err != nil {
			return nil, err
		}
		stream = next
	}
	return stream, nil
}
