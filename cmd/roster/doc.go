// Command roster manages the member and team store: schema migrations, seed
// data and read-only listings.
//
//	roster --config configs/roster.yaml migrate
//	roster seed --demo
//	roster members page --page 1 --size 2
//	roster teams
package main
