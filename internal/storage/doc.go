// Package storage provides the fire journal used by loopd.
//
// Every time a configured job fires, the daemon appends a FireRecord. The
// journal answers "when did this job last run and did it work" after the fact.
package storage
