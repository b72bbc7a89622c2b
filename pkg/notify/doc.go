/*
Package notify queues and delivers user notifications.

Notification flow is split in two so the engine never waits on a push
service:

Enqueuer:
  - Called by the engine and settler as a side effect of transitions
  - Writes a pending NotificationRequest row; fire-and-forget, a
    failed insert is logged and dropped

Dispatcher:
  - Drains pending rows to a Sender on a fixed interval
  - Marks each row sent or failed

LogSender is the default Sender when no push provider is configured;
it just logs the delivery.
*/
package notify
