// Package enumerate provides the breakable enumeration primitive and a small
// set of lazy combinators over it.
//
// A Seq is a restartable producer: calling it runs the production from the
// beginning. Consumers drive it through Each, which hands every element to a
// callback returning a Control. Continue asks for more; Stop(value) halts the
// producer immediately and makes value the result of Each. Stopping is an
// ordinary outcome, never an error: the error return of a Seq is reserved for
// producer failures such as a lost connection or a cancelled context.
//
//	out, err := enumerate.Each(ctx, conn.Jobs(), func(j *job.Job) enumerate.Control[uint64] {
//		if j.ID() < 100 {
//			return enumerate.Stop(j.ID())
//		}
//		return enumerate.Continue[uint64]()
//	})
//	if err != nil {
//		return err
//	}
//	if out.Stopped {
//		fmt.Println("first old job:", out.Value)
//	}
//
// When the producer runs dry, Outcome.Seq carries the sequence so it can be
// composed further with Filter, Map, Take, Concat and friends, or ranged over
// with Iter.
package enumerate
