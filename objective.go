package turtle

import "context"

// Objective is a program driving one or more turtles. Every turtle of an objective runs on its own
// goroutine.
type Objective interface {
	// RunTurtle drives the turtle at the index passed. turtles holds every turtle of the objective.
	RunTurtle(ctx context.Context, index int, app *Application, turtles []*Turtle, args []any) error
	// TurtleCount returns the amount of turtles the objective needs.
	TurtleCount() int
}

// SingleTurtleObjective is an Objective that drives a single turtle.
type SingleTurtleObjective func(ctx context.Context, t *Turtle, app *Application, args []any) error

// RunTurtle ...
func (f SingleTurtleObjective) RunTurtle(ctx context.Context, index int, app *Application, turtles []*Turtle, args []any) error {
	return f(ctx, turtles[index], app, args)
}

// TurtleCount ...
func (SingleTurtleObjective) TurtleCount() int {
	return 1
}
