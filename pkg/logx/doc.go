// Package logx configures remindbot's structured logging.
//
// Logger is a thin value type over zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is JSON lines
//   - an optional Telegram sink forwards WARN+ lines to an operator chat,
//     rate limited so a failing broadcast can't flood it
package logx
