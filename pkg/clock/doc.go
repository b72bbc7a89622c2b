/*
Package clock is the engine's time authority.

Server time in UTC is the only clock that matters for correctness;
client timestamps are evidence about the observation, never an input
to window math. Clock is an interface so tests can freeze time, and
SkewOffset turns a reported client time into a diagnostic offset.
LocalWakeToUTC converts a user's wall-clock wake time in their zone to
the UTC instant the engine schedules against.
*/
package clock
