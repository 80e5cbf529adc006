// Package logx is reminderd's structured logging: a small value-type Logger
// over zerolog with field helpers, a readable console writer (short caller,
// no colors or timestamps under journald), an optional native journald sink,
// a JSON file sink, and level/sink changes applied at runtime on config reload.
package logx
