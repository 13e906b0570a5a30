// Package pipeline runs a prompt execution through its four stages.
//
// # Stages
//
// Stages run strictly in order over a single domain.ExecutionContext:
//   - resolve: pick the environment from the explicit override, the input
//     object's env metadata, the beta-/prod- name prefix, or the default
//   - render: load the prompt configuration and its template, substitute
//     variables, reject unresolved placeholders
//   - invoke: call the inference service under the retry policy
//   - publish: format the text and write it to {env}/outputs/{slug}.{ext}
//
// Each stage appends the fields it produces to the context and fails if
// one of them was already written. Stages are exported individually so an
// external workflow engine can drive them one at a time; Coordinator runs
// all of them in-process.
//
// # Errors
//
// A failing stage stops the run. Its error is wrapped in a *StageError
// naming the stage; errors.Is and errors.As still reach the domain error
// underneath, so validation failures stay distinguishable from service
// failures.
package pipeline
