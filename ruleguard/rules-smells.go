package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guards returning the same value are one guard.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// Nested loops over the record/embedding sets hide O(n*m) passes.
	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)

	m.Match(`time.Now().Sub($x)`).
		Report(`use time.Since instead`).
		Suggest(`time.Since($x)`)

	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`use fmt.Errorf instead`).
		Suggest(`fmt.Errorf($args)`)
}
