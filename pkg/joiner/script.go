package joiner

import (
	"encoding/json"
	"fmt"
)

// captionBinding is the name of the browser binding caption observers call
// with one JSON argument per stable caption line.
const captionBinding = "meetbotTranscript"

// captionPayload is what the observer scripts send through the binding.
type captionPayload struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func parseCaptionPayload(payload string) (captionPayload, error) {
	var p captionPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return p, fmt.Errorf("parse caption payload: %w", err)
	}
	return p, nil
}

// clickFirstVisibleJS clicks the first visible element matching any of the
// selectors and evaluates to the selector used, or "".
func clickFirstVisibleJS(selectors []string) string {
	sels, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
		for (const s of %s) {
			const el = document.querySelector(s);
			if (el && el.offsetParent !== null) { el.click(); return s; }
		}
		return "";
	})()`, sels)
}

// anyVisibleJS evaluates to true when any selector matches a visible element.
func anyVisibleJS(selectors []string) string {
	sels, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
		for (const s of %s) {
			const el = document.querySelector(s);
			if (el && el.offsetParent !== null) return true;
		}
		return false;
	})()`, sels)
}

// anyElementJS evaluates to true when any selector matches at all, visible
// or not. Used for in-meeting indicators that may be offscreen.
func anyElementJS(selectors []string) string {
	sels, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
		for (const s of %s) {
			if (document.querySelector(s)) return true;
		}
		return false;
	})()`, sels)
}

// clickButtonByTextJS clicks the first visible button whose text or
// aria-label matches one of the given names exactly.
func clickButtonByTextJS(names []string) string {
	list, _ := json.Marshal(names)
	return fmt.Sprintf(`(() => {
		const wanted = %s;
		const buttons = document.querySelectorAll('button, [role="button"], a');
		for (const name of wanted) {
			for (const btn of buttons) {
				const text = (btn.innerText || "").trim();
				const label = (btn.getAttribute("aria-label") || "").trim();
				if ((text === name || label === name) && btn.offsetParent !== null) {
					btn.click();
					return name;
				}
			}
		}
		return "";
	})()`, list)
}

// textVisibleJS evaluates to true when the page body contains any of the
// given phrases.
func textVisibleJS(phrases []string) string {
	list, _ := json.Marshal(phrases)
	return fmt.Sprintf(`(() => {
		const body = document.body ? document.body.innerText : "";
		return %s.some(p => body.includes(p));
	})()`, list)
}

// fillFirstVisibleJS sets the value of the first visible matching input in a
// way the surrounding framework notices.
func fillFirstVisibleJS(selectors []string, value string) string {
	sels, _ := json.Marshal(selectors)
	val, _ := json.Marshal(value)
	return fmt.Sprintf(`(() => {
		for (const s of %s) {
			const el = document.querySelector(s);
			if (el && el.offsetParent !== null) {
				const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value").set;
				setter.call(el, %s);
				el.dispatchEvent(new Event("input", { bubbles: true }));
				el.dispatchEvent(new Event("change", { bubbles: true }));
				return s;
			}
		}
		return "";
	})()`, sels, val)
}

// meetCaptionObserverJS watches Google Meet's caption area and emits a line
// once its text has been stable for 2.5 seconds. Without the debounce the
// observer fires for every partial update ("Hello", "Hello I", "Hello I am").
const meetCaptionObserverJS = `(() => {
	if (window.__meetCaptionObserver) return;

	const pending = new Map();

	const observer = new MutationObserver(() => {
		const textSelector = '.ygicle, .VbkSUe, .bh44bd, .iTTPOb, .CNusmb, [jscontroller="yQsYHe"]';
		const scope = document.querySelector('[jsname="dsyhDe"]') || document.querySelector('.a4cQT') || document.body;
		const elements = scope.querySelectorAll(textSelector);

		elements.forEach(el => {
			const currentText = el.innerText;
			if (!currentText || currentText.trim().length === 0) return;
			if (el.dataset.lastEmitted === currentText) return;

			let speaker = "Unknown Speaker";
			const row = el.closest('.nMcdL') || el.closest('.bj4p3b');
			if (row) {
				const nameSpan = row.querySelector('.NWpY1d');
				if (nameSpan) speaker = nameSpan.innerText;
			}
			if (speaker === "Unknown Speaker") {
				const sender = el.closest('[data-sender-name]');
				if (sender) speaker = sender.getAttribute('data-sender-name');
			}
			if (speaker === "Unknown Speaker") {
				const nameEl = el.closest('.a4cQT')?.querySelector('.zs7s8d');
				if (nameEl) speaker = nameEl.innerText;
			}

			if (pending.has(el)) clearTimeout(pending.get(el).timer);

			const timer = setTimeout(() => {
				let textToEmit = currentText;
				const lastEmitted = el.dataset.lastEmitted || "";
				if (currentText.startsWith(lastEmitted)) {
					textToEmit = currentText.substring(lastEmitted.length).trim();
				}
				if (textToEmit && textToEmit.length > 0) {
					window.` + captionBinding + `(JSON.stringify({
						speaker: speaker,
						text: textToEmit,
						timestamp: new Date().toISOString()
					}));
					el.dataset.lastEmitted = currentText;
				}
				pending.delete(el);
			}, 2500);

			pending.set(el, { timer });
		});
	});

	observer.observe(document.body, { childList: true, subtree: true, characterData: true });
	window.__meetCaptionObserver = observer;
})()`

// teamsCaptionObserverJS reads Teams' caption renderer. Speaker names come
// from the author element in the same caption row; lines without a trailing
// sentence terminator wait a second for the text to settle.
const teamsCaptionObserverJS = `(() => {
	if (window.__teamsCaptionObserver) return;

	const emitted = new Set();
	const pending = new Map();

	function emit(speaker, text) {
		if (!text || text.length < 3) return;
		const lower = text.toLowerCase();
		if (lower.includes('turn on') || lower.includes('live captions') ||
			lower.includes('joined the') || lower.includes('left the')) return;
		if (emitted.has(text)) return;
		emitted.add(text);
		window.` + captionBinding + `(JSON.stringify({
			speaker: speaker,
			text: text,
			timestamp: new Date().toISOString()
		}));
	}

	function schedule(id, speaker, text) {
		const prev = pending.get(id);
		if (prev) clearTimeout(prev.timer);
		const complete = /[.!?]$/.test(text.trim());
		const timer = setTimeout(() => {
			if (/[.!?]$/.test(text.trim())) emit(speaker, text);
			pending.delete(id);
		}, complete ? 200 : 1000);
		pending.set(id, { timer });
	}

	function scan() {
		const captionElements = document.querySelectorAll('[data-tid="closed-caption-text"]');
		for (const el of captionElements) {
			const container = el.closest('.fui-ChatMessageCompact');
			let speaker = "Participant";
			if (container) {
				const author = container.querySelector('[data-tid="author"]');
				if (author) {
					const name = (author.innerText || "").trim();
					if (name && name.length < 50) speaker = name;
				}
			}
			const text = (el.innerText || "").trim();
			if (!text || text.length < 2) continue;

			let id = el.getAttribute('data-caption-id');
			if (!id) {
				id = 'cap_' + Date.now() + '_' + Math.random();
				el.setAttribute('data-caption-id', id);
			}
			schedule(id, speaker, text);
		}
	}

	const observer = new MutationObserver(scan);
	observer.observe(document.body, { childList: true, subtree: true, characterData: true });
	setInterval(scan, 400);
	window.__teamsCaptionObserver = observer;
})()`

// teamsCameraMicOffJS flips the pre-join toggle switches off when checked.
const teamsCameraMicOffJS = `(() => {
	const results = [];
	const camera = document.querySelector('[data-tid="toggle-video"]');
	if (camera && camera.checked) { camera.click(); results.push("camera"); }
	const mic = document.querySelector('input[data-tid="toggle-mute"]');
	if (mic && mic.checked) { mic.click(); results.push("mic"); }
	return results.join(",");
})()`

// teamsCaptionMenuItemJS clicks the captions entry inside an open menu.
const teamsCaptionMenuItemJS = `(() => {
	const elements = document.querySelectorAll('[role="menuitem"], [role="menuitemcheckbox"], button');
	for (const el of elements) {
		const text = (el.textContent || '').toLowerCase();
		const label = (el.getAttribute('aria-label') || '').toLowerCase();
		if ((text.includes('caption') || label.includes('caption')) &&
			!text.includes('turn off') && !label.includes('turn off')) {
			const rect = el.getBoundingClientRect();
			if (rect.width > 0 && rect.height > 0) { el.click(); return true; }
		}
	}
	return false;
})()`
