// Package tab models a café tab as an event-sourced aggregate.
//
// A tab opens at a table, collects drink and food orders, tracks each item from
// outstanding through prepared (food only) to served, and closes once every item
// is served and the bill is paid. Matching of served or prepared items is done
// by multiset, so two identical items need two completions.
package tab
