package runtime

import (
	"context"
	"fmt"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

const (
	DynamicTestSegmentType      = "dynamic-test"
	DynamicContainerSegmentType = "dynamic-container"
)

type dynamicTest struct {
	exec ports.Executable
}

type dynamicContainer struct {
	children []ports.DynamicNode
}

func isDynamic(d *domain.Descriptor) bool {
	switch d.Payload().(type) {
	case *dynamicTest, *dynamicContainer:
		return true
	}
	return false
}

// registerDynamic attaches generated nodes below parent, announces them and
// executes them in order. Registration problems fail parent.
func (e *Engine) registerDynamic(ctx context.Context, ec *ExecutionContext, parent *domain.Descriptor, nodes []ports.DynamicNode, o *outcome) error {
	for i, n := range nodes {
		segment, typ := DynamicTestSegmentType, domain.TypeTest
		var payload any = &dynamicTest{exec: n.Executable}
		if n.Children != nil {
			segment, typ = DynamicContainerSegmentType, domain.TypeContainer
			payload = &dynamicContainer{children: n.Children}
		}

		id, err := parent.UniqueID().Append(segment, fmt.Sprintf("#%d", i+1))
		if err != nil {
			o.record(err)
			continue
		}
		child := domain.NewDescriptor(id, n.DisplayName, typ, domain.WithSource(n.Source), domain.WithPayload(payload))
		if err := parent.AddChild(child); err != nil {
			o.record(err)
			continue
		}

		ec.listener.DynamicTestRegistered(child)
		if err := e.execute(ctx, ec, child); err != nil {
			return err
		}
	}
	return nil
}

// executeDynamicTest runs a generated test. Dynamic tests get neither per-test
// callbacks nor condition evaluation, but their failures still go through the
// exception handlers.
func (e *Engine) executeDynamicTest(ec *ExecutionContext, t *dynamicTest, o *outcome) error {
	if t.exec == nil {
		return nil
	}
	node := ec.node
	instance, _ := node.TestInstance()
	err := handleUnitFailure(ec, unguarded("dynamic test", func() error {
		args, err := resolveArguments(ec, node.desc, t.exec.Parameters())
		if err != nil {
			return err
		}
		return t.exec.Execute(node, instance, args)
	})())
	if domain.IsFatal(err) {
		return err
	}
	o.record(err)
	node.setExecutionError(err)
	return nil
}
