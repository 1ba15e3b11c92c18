// Copyright © 2016 The Jet authors

package jettest

import "testing"

func TestSuiteRunner(t *testing.T) {
	RunTestSuite(t, &Runner{}, TestSuite{
		{"literals", TestSequence{
			{"1", "1", ""},
			{`"abc"`, `"abc"`, ""},
			{"#t", "#t", ""},
			{"()", "()", ""},
		}},
		{"definitions", TestSequence{
			{"(define x 7)", "()", ""},
			{"x", "7", ""},
			{"(set! x 8)", "()", ""},
			{"x", "8", ""},
		}},
		{"output", TestSequence{
			{"(println (quote hello))", "()", "hello\n"},
			{`(print "a")`, "()", "a"},
		}},
		{"state carries across expressions", TestSequence{
			{"(define (twice f v) (f (f v)))", "()", ""},
			{"(twice inc 5)", "7", ""},
		}},
	})
}

func TestSuiteRunnerUnderStress(t *testing.T) {
	if testing.Short() {
		t.Skip("GC stress runs are slow")
	}
	RunTestSuite(t, &Runner{GCStress: true, HeapVerify: true}, TestSuite{
		{"stress parity", TestSequence{
			{"(define (fib n) (if (eq? n 0) 0 (if (eq? n 1) 1 (+ (fib (- n 1)) (fib (- n 2))))))", "()", ""},
			{"(fib 10)", "55", ""},
		}},
	})
}
