// Package telegram adapts the Telegram Bot API (gopkg.in/telebot.v4) to the
// transport interfaces.
//
// Outgoing text in transport.ParseMarkdown is rendered to Telegram HTML, and
// rich messages become a bold title, body, field lines and an italic footer.
// A group chat is its own scope, so its default target is the chat itself.
package telegram
