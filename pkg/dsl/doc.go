/*
Package dsl builds test engines from plain Go functions.

Containers group tests, nested containers and lifecycle functions. Test
functions may declare any parameters; each one is supplied by a registered
extension.ParameterResolver. The built-in resolvers supply extension.Context,
context.Context, extension.TestInfo, extension.TestReporter and, when the
container has an Instance factory, the test instance itself.

Example usage:

	calc := dsl.Container("Calculator").
		Tags("fast").
		Instance(func(any) (any, error) { return &Calculator{}, nil })

	calc.BeforeEach(func(ctx extension.Context) error {
		return nil
	})

	calc.Test("adds", func(c *Calculator, info extension.TestInfo) error {
		if c.Add(1, 2) != 3 {
			return domain.Fail("%s: expected 3", info.DisplayName)
		}
		return nil
	})

	calc.Factory("squares", func() []ports.DynamicNode {
		var nodes []ports.DynamicNode
		for i := range 3 {
			nodes = append(nodes, dsl.DynamicTest(fmt.Sprint(i), func() error { return nil }))
		}
		return nodes
	})

	engine, err := dsl.NewEngine("dsl", calc)
	// ... pass engine to junit5.New(junit5.WithEngines(engine))
*/
package dsl
